package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"assistant-gateway/internal/domain"
)

// fakeDynamo is an in-memory stand-in for the DynamoDB API. PutItem honors
// attribute_not_exists conditions; UpdateItem only records its input.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue

	getErr    error
	putErr    error
	updateErr error
	queryErr  error

	lastUpdate *dynamodb.UpdateItemInput
	lastQuery  *dynamodb.QueryInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(item map[string]types.AttributeValue) string {
	pk := item["PK"].(*types.AttributeValueMemberS).Value
	sk := item["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	key := itemKey(in.Item)
	if in.ConditionExpression != nil {
		if _, exists := f.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdate = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQuery = in
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value

	var keys []string
	for k := range f.items {
		if strings.HasPrefix(k, pk+"|") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func newTestClient(t *testing.T, api *fakeDynamo) *Client {
	t.Helper()
	c, err := New(api, "gateway-state")
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "gateway-state")
	require.Error(t, err)

	_, err = New(newFakeDynamo(), "  ")
	require.Error(t, err)
}

func TestTranscript_RoundTripPreservesSequence(t *testing.T) {
	c := newTestClient(t, newFakeDynamo())
	ctx := context.Background()

	// a legacy role survives storage verbatim
	turns := []domain.Turn{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: "bot", Content: "old-style reply"},
		{Role: domain.RoleAssistant, Content: "how can we help"},
	}
	require.NoError(t, c.SaveTranscript(ctx, "sess-1", turns))

	got, err := c.GetTranscript(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, turns, got)
}

func TestTranscript_UnknownSessionIsEmptyNotError(t *testing.T) {
	c := newTestClient(t, newFakeDynamo())

	got, err := c.GetTranscript(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestTranscript_LastWriterWins(t *testing.T) {
	c := newTestClient(t, newFakeDynamo())
	ctx := context.Background()

	require.NoError(t, c.SaveTranscript(ctx, "sess-1", []domain.Turn{{Role: domain.RoleUser, Content: "first"}}))
	second := []domain.Turn{
		{Role: domain.RoleUser, Content: "second"},
		{Role: domain.RoleAssistant, Content: "reply"},
	}
	require.NoError(t, c.SaveTranscript(ctx, "sess-1", second))

	got, err := c.GetTranscript(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, second, got)
}

func TestSaveTranscript_RequiresSessionKey(t *testing.T) {
	c := newTestClient(t, newFakeDynamo())
	require.Error(t, c.SaveTranscript(context.Background(), "  ", nil))
}

func TestGetTranscript_APIError(t *testing.T) {
	api := newFakeDynamo()
	api.getErr = errors.New("throughput exceeded")
	c := newTestClient(t, api)

	_, err := c.GetTranscript(context.Background(), "sess-1")
	require.ErrorContains(t, err, "throughput exceeded")
}

func TestBumpAnalytics_UpdateExpression(t *testing.T) {
	api := newFakeDynamo()
	c := newTestClient(t, api)

	at := time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC)
	require.NoError(t, c.BumpAnalytics(context.Background(), "sess-1", at))

	in := api.lastUpdate
	require.NotNil(t, in)
	require.Equal(t, "gateway-state", *in.TableName)
	require.Equal(t, "SESSION#sess-1", in.Key["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "ANALYTICS", in.Key["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "SET lastActive = :ts, sessionKey = :sid ADD messageCount :inc", *in.UpdateExpression)
	require.Equal(t, "1", in.ExpressionAttributeValues[":inc"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, "2026-08-14T10:30:00Z", in.ExpressionAttributeValues[":ts"].(*types.AttributeValueMemberS).Value)
}

func TestBumpAnalytics_RequiresSessionKey(t *testing.T) {
	c := newTestClient(t, newFakeDynamo())
	require.Error(t, c.BumpAnalytics(context.Background(), "", time.Now()))
}

func TestGetAnalytics_DecodesCounter(t *testing.T) {
	api := newFakeDynamo()
	api.items["SESSION#sess-1|ANALYTICS"] = map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: "SESSION#sess-1"},
		"SK":           &types.AttributeValueMemberS{Value: "ANALYTICS"},
		"sessionKey":   &types.AttributeValueMemberS{Value: "sess-1"},
		"messageCount": &types.AttributeValueMemberN{Value: "7"},
		"lastActive":   &types.AttributeValueMemberS{Value: "2026-08-14T10:30:00Z"},
	}
	c := newTestClient(t, api)

	counter, err := c.GetAnalytics(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", counter.SessionKey)
	require.Equal(t, 7, counter.MessageCount)
	require.Equal(t, time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC), counter.LastActive.UTC())
}

func TestGetAnalytics_AbsentRowIsZero(t *testing.T) {
	c := newTestClient(t, newFakeDynamo())

	counter, err := c.GetAnalytics(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", counter.SessionKey)
	require.Zero(t, counter.MessageCount)
	require.True(t, counter.LastActive.IsZero())
}

func TestRecordLead_AppendsImmutableRecord(t *testing.T) {
	api := newFakeDynamo()
	c := newTestClient(t, api)

	lead := domain.LeadRecord{
		SessionKey: "sess-1",
		Message:    "What is the COST",
		CreatedAt:  time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, c.RecordLead(context.Background(), lead))

	require.Len(t, api.items, 1)
	for key, item := range api.items {
		require.True(t, strings.HasPrefix(key, "LEAD|LEAD#2026-08-14T10:30:00Z#"))
		require.Equal(t, "sess-1", item["sessionKey"].(*types.AttributeValueMemberS).Value)
		require.Equal(t, "What is the COST", item["message"].(*types.AttributeValueMemberS).Value)
	}
}

func TestRecordLead_DuplicateTriggersGetSeparateRecords(t *testing.T) {
	api := newFakeDynamo()
	c := newTestClient(t, api)

	lead := domain.LeadRecord{SessionKey: "sess-1", Message: "price please", CreatedAt: time.Now()}
	require.NoError(t, c.RecordLead(context.Background(), lead))
	require.NoError(t, c.RecordLead(context.Background(), lead))
	require.Len(t, api.items, 2)
}

func TestRecordLead_RequiresSessionKey(t *testing.T) {
	c := newTestClient(t, newFakeDynamo())
	require.Error(t, c.RecordLead(context.Background(), domain.LeadRecord{Message: "price"}))
}

func TestSaveRegistration_RequiresContactFields(t *testing.T) {
	c := newTestClient(t, newFakeDynamo())

	err := c.SaveRegistration(context.Background(), domain.RegistrationRecord{FullName: "A", Email: "a@b.c"})
	require.Error(t, err)
}

func TestRegistrations_SaveAndListNewestFirst(t *testing.T) {
	api := newFakeDynamo()
	c := newTestClient(t, api)
	ctx := context.Background()

	older := domain.RegistrationRecord{
		FullName:  "Older Person",
		Email:     "old@example.com",
		Phone:     "1",
		CreatedAt: time.Date(2026, 8, 14, 9, 0, 0, 0, time.UTC),
	}
	newer := domain.RegistrationRecord{
		FullName:       "Newer Person",
		Email:          "new@example.com",
		Phone:          "2",
		ProjectDetails: "portfolio site",
		CreatedAt:      time.Date(2026, 8, 14, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.SaveRegistration(ctx, older))
	require.NoError(t, c.SaveRegistration(ctx, newer))

	recs, err := c.ListRegistrations(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "Newer Person", recs[0].FullName)
	require.Equal(t, "portfolio site", recs[0].ProjectDetails)
	require.Equal(t, "Older Person", recs[1].FullName)

	require.NotNil(t, api.lastQuery.ScanIndexForward)
	require.False(t, *api.lastQuery.ScanIndexForward)
}

func TestListRegistrations_QueryError(t *testing.T) {
	api := newFakeDynamo()
	api.queryErr = errors.New("query failed")
	c := newTestClient(t, api)

	_, err := c.ListRegistrations(context.Background())
	require.ErrorContains(t, err, "query failed")
}
