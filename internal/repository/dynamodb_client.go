// Package repository persists gateway state in one DynamoDB table:
// transcripts and analytics keyed per session, leads and registrations as
// append-only record streams. It holds no business logic; when writes race
// for a session the last full-sequence write wins.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"assistant-gateway/internal/domain"
)

const (
	skTranscript = "TRANSCRIPT"
	skAnalytics  = "ANALYTICS"
	pkLeads      = "LEAD"
	pkRegs       = "REG"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a DynamoDB table for gateway state.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// sessionPK returns the partition key shared by a session's transcript and
// analytics rows.
func sessionPK(sessionKey string) string {
	return "SESSION#" + sessionKey
}

// recordSK builds a time-ordered sort key for append-only record streams.
func recordSK(prefix string, ts time.Time) string {
	return prefix + "#" + ts.UTC().Format(time.RFC3339Nano) + "#" + uuid.NewString()
}

// GetTranscript loads the whole ordered turn sequence for a session. An
// unknown key returns an empty sequence, not an error.
func (c *Client) GetTranscript(ctx context.Context, sessionKey string) ([]domain.Turn, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionKey)},
			"SK": &types.AttributeValueMemberS{Value: skTranscript},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetTranscript get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}

	turns, err := turnsAttr(out.Item, "turns")
	if err != nil {
		return nil, fmt.Errorf("repository: GetTranscript decode turns: %w", err)
	}
	return turns, nil
}

// SaveTranscript replaces the session's turn sequence in full. Last writer
// wins; there is no conditional check.
func (c *Client) SaveTranscript(ctx context.Context, sessionKey string, turns []domain.Turn) error {
	if strings.TrimSpace(sessionKey) == "" {
		return errors.New("repository: SaveTranscript: session key is required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: sessionPK(sessionKey)},
			"SK":         &types.AttributeValueMemberS{Value: skTranscript},
			"sessionKey": &types.AttributeValueMemberS{Value: sessionKey},
			"turns":      turnsValue(turns),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTranscript: %w", err)
	}
	return nil
}

// BumpAnalytics increments the session's message counter and stamps the
// last-active time, creating the row if absent. Safe to retry: repeated
// calls only ever move the counter up and the timestamp forward.
func (c *Client) BumpAnalytics(ctx context.Context, sessionKey string, at time.Time) error {
	if strings.TrimSpace(sessionKey) == "" {
		return errors.New("repository: BumpAnalytics: session key is required")
	}

	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionKey)},
			"SK": &types.AttributeValueMemberS{Value: skAnalytics},
		},
		UpdateExpression: aws.String("SET lastActive = :ts, sessionKey = :sid ADD messageCount :inc"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ts":  &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
			":sid": &types.AttributeValueMemberS{Value: sessionKey},
			":inc": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: BumpAnalytics: %w", err)
	}
	return nil
}

// GetAnalytics reads back a session's counter row. Absent rows return a
// zero-count counter for the key.
func (c *Client) GetAnalytics(ctx context.Context, sessionKey string) (domain.AnalyticsCounter, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionKey)},
			"SK": &types.AttributeValueMemberS{Value: skAnalytics},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.AnalyticsCounter{}, fmt.Errorf("repository: GetAnalytics get item: %w", err)
	}
	counter := domain.AnalyticsCounter{SessionKey: sessionKey}
	if out == nil || len(out.Item) == 0 {
		return counter, nil
	}

	if counter.MessageCount, err = intAttr(out.Item, "messageCount"); err != nil {
		return domain.AnalyticsCounter{}, fmt.Errorf("repository: GetAnalytics decode count: %w", err)
	}
	if counter.LastActive, err = timeAttr(out.Item, "lastActive"); err != nil {
		return domain.AnalyticsCounter{}, fmt.Errorf("repository: GetAnalytics decode lastActive: %w", err)
	}
	return counter, nil
}

// RecordLead appends an immutable lead record. Duplicate triggers across
// turns create separate records on purpose.
func (c *Client) RecordLead(ctx context.Context, lead domain.LeadRecord) error {
	if strings.TrimSpace(lead.SessionKey) == "" {
		return errors.New("repository: RecordLead: session key is required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: pkLeads},
			"SK":         &types.AttributeValueMemberS{Value: recordSK(pkLeads, lead.CreatedAt)},
			"sessionKey": &types.AttributeValueMemberS{Value: lead.SessionKey},
			"message":    &types.AttributeValueMemberS{Value: lead.Message},
			"createdAt":  &types.AttributeValueMemberS{Value: lead.CreatedAt.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordLead: %w", err)
	}
	return nil
}

// SaveRegistration appends a write-once contact-form record.
func (c *Client) SaveRegistration(ctx context.Context, rec domain.RegistrationRecord) error {
	if strings.TrimSpace(rec.FullName) == "" || strings.TrimSpace(rec.Email) == "" || strings.TrimSpace(rec.Phone) == "" {
		return errors.New("repository: SaveRegistration: fullName, email and phone are required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":             &types.AttributeValueMemberS{Value: pkRegs},
			"SK":             &types.AttributeValueMemberS{Value: recordSK(pkRegs, rec.CreatedAt)},
			"fullName":       &types.AttributeValueMemberS{Value: rec.FullName},
			"email":          &types.AttributeValueMemberS{Value: rec.Email},
			"phone":          &types.AttributeValueMemberS{Value: rec.Phone},
			"projectDetails": &types.AttributeValueMemberS{Value: rec.ProjectDetails},
			"createdAt":      &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveRegistration: %w", err)
	}
	return nil
}

// ListRegistrations returns all registrations, newest first.
func (c *Client) ListRegistrations(ctx context.Context) ([]domain.RegistrationRecord, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pkRegs},
		},
		ScanIndexForward: aws.Bool(false),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListRegistrations query: %w", err)
	}

	recs := make([]domain.RegistrationRecord, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToRegistration(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRegistrations unmarshal: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func itemToRegistration(item map[string]types.AttributeValue) (domain.RegistrationRecord, error) {
	fullName, err := strAttr(item, "fullName")
	if err != nil {
		return domain.RegistrationRecord{}, err
	}
	email, err := strAttr(item, "email")
	if err != nil {
		return domain.RegistrationRecord{}, err
	}
	phone, err := strAttr(item, "phone")
	if err != nil {
		return domain.RegistrationRecord{}, err
	}
	details, _ := strAttr(item, "projectDetails") // allow empty
	createdAt, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.RegistrationRecord{}, err
	}

	return domain.RegistrationRecord{
		FullName:       fullName,
		Email:          email,
		Phone:          phone,
		ProjectDetails: details,
		CreatedAt:      createdAt,
	}, nil
}

// turnsValue encodes a turn sequence as a DynamoDB list of role/content maps.
func turnsValue(turns []domain.Turn) types.AttributeValue {
	items := make([]types.AttributeValue, 0, len(turns))
	for _, t := range turns {
		items = append(items, &types.AttributeValueMemberM{
			Value: map[string]types.AttributeValue{
				"role":    &types.AttributeValueMemberS{Value: string(t.Role)},
				"content": &types.AttributeValueMemberS{Value: t.Content},
			},
		})
	}
	return &types.AttributeValueMemberL{Value: items}
}

// turnsAttr decodes the stored turn list preserving role values verbatim;
// role coercion belongs to the caller's normalization pass.
func turnsAttr(item map[string]types.AttributeValue, key string) ([]domain.Turn, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", key)
	}

	turns := make([]domain.Turn, 0, len(list.Value))
	for i, entry := range list.Value {
		m, ok := entry.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: turn %d is not a map", i)
		}
		role, err := strAttr(m.Value, "role")
		if err != nil {
			return nil, fmt.Errorf("repository: turn %d: %w", i, err)
		}
		content, err := strAttr(m.Value, "content")
		if err != nil {
			return nil, fmt.Errorf("repository: turn %d: %w", i, err)
		}
		turns = append(turns, domain.Turn{Role: domain.Role(role), Content: content})
	}
	return turns, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}
