package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"assistant-gateway/internal/domain"
	"assistant-gateway/internal/language"
)

// Fixed user-visible replies. The router never surfaces a raw error to the
// end user: the contract is "always produce a plausible reply".
const (
	ReplyMessageMissing = "Message missing"
	ReplySessionMissing = "Session missing"
	FallbackReply       = "Hello! How can we help you?"
)

// Channel identifies the transport a message arrived on.
type Channel string

const (
	ChannelWidget   Channel = "widget"
	ChannelWhatsApp Channel = "whatsapp"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// TranscriptStore persists whole ordered turn sequences keyed by session.
// GetTranscript returns an empty sequence for an unknown key.
type TranscriptStore interface {
	GetTranscript(ctx context.Context, sessionKey string) ([]domain.Turn, error)
	SaveTranscript(ctx context.Context, sessionKey string, turns []domain.Turn) error
}

type LeadRecorder interface {
	RecordLead(ctx context.Context, lead domain.LeadRecord) error
}

type AnalyticsRecorder interface {
	BumpAnalytics(ctx context.Context, sessionKey string, at time.Time) error
}

type HandleInput struct {
	SessionKey string
	Message    string
	Channel    Channel
}

// PersistReport surfaces best-effort persistence outcomes to the adapter
// layer. A non-nil field means that write failed; the user-visible reply is
// unaffected either way.
type PersistReport struct {
	TranscriptErr error
	AnalyticsErr  error
	LeadErr       error
}

func (r PersistReport) Clean() bool {
	return r.TranscriptErr == nil && r.AnalyticsErr == nil && r.LeadErr == nil
}

type HandleOutput struct {
	Reply       string
	Language    language.Tag
	Persistence PersistReport
}

// ChatService is the session router: it owns conversation state, composes
// the completion request, and applies the lead and analytics side-effects.
type ChatService struct {
	params      ParamGetter
	completions CompletionClient
	transcripts TranscriptStore
	leads       LeadRecorder
	analytics   AnalyticsRecorder
	strategy    ContextStrategy
	paramPrefix string
	locks       *sessionLocks

	cacheMu     sync.RWMutex
	cacheLoaded bool
	model       string

	now func() time.Time
}

func NewChatService(p ParamGetter, c CompletionClient, t TranscriptStore, l LeadRecorder, a AnalyticsRecorder, strategy ContextStrategy, paramPrefix string, serializeSessions bool) (*ChatService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if c == nil {
		return nil, errors.New("usecase: completion client must not be nil")
	}
	if t == nil {
		return nil, errors.New("usecase: transcript store must not be nil")
	}
	if l == nil {
		return nil, errors.New("usecase: lead recorder must not be nil")
	}
	if a == nil {
		return nil, errors.New("usecase: analytics recorder must not be nil")
	}
	if strategy == nil {
		strategy = fullHistory{}
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	s := &ChatService{
		params:      p,
		completions: c,
		transcripts: t,
		leads:       l,
		analytics:   a,
		strategy:    strategy,
		paramPrefix: paramPrefix,
		now:         time.Now,
	}
	if serializeSessions {
		s.locks = newSessionLocks()
	}
	return s, nil
}

// Handle runs one conversation turn end to end. It never returns an error
// for provider or store failures: those are absorbed here, logged, and
// reported through HandleOutput.Persistence. The returned error is reserved
// for programmer-level misuse and is currently always nil.
func (s *ChatService) Handle(ctx context.Context, in HandleInput) (HandleOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return HandleOutput{Reply: ReplyMessageMissing, Language: language.TagEnglish}, nil
	}
	sessionKey := strings.TrimSpace(in.SessionKey)
	if sessionKey == "" {
		// Only the widget can omit the key; the platform always supplies one.
		return HandleOutput{Reply: ReplySessionMissing, Language: language.Detect(message)}, nil
	}

	if s.locks != nil {
		defer s.locks.acquire(sessionKey)()
	}

	out := HandleOutput{Language: language.Detect(message)}

	history, err := s.transcripts.GetTranscript(ctx, sessionKey)
	if err != nil {
		// A failed read degrades to a fresh session rather than refusing the
		// user; continuity may be lost on this turn.
		slog.Error("transcript load failed", "sessionKey", sessionKey, "err", err)
		out.Persistence.TranscriptErr = newError(ErrorStoreFailure, "transcript_load_error", err)
		history = nil
	}

	turns := normalizeTurns(history)
	turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: message})

	reply, provErr := s.complete(ctx, s.strategy.Select(turns))
	if provErr != nil {
		slog.Error("completion failed", "sessionKey", sessionKey, "channel", in.Channel, "err", provErr)
		out.Reply = FallbackReply
		// The user turn still persists alone so the next turn has context.
		if saveErr := s.transcripts.SaveTranscript(ctx, sessionKey, turns); saveErr != nil {
			out.Persistence.TranscriptErr = newError(ErrorStoreFailure, "transcript_save_error", saveErr)
		}
	} else {
		if strings.TrimSpace(reply) == "" {
			reply = FallbackReply
		}
		out.Reply = reply
		turns = append(turns, domain.Turn{Role: domain.RoleAssistant, Content: reply})
		if saveErr := s.transcripts.SaveTranscript(ctx, sessionKey, turns); saveErr != nil {
			slog.Error("transcript save failed", "sessionKey", sessionKey, "err", saveErr)
			out.Persistence.TranscriptErr = newError(ErrorStoreFailure, "transcript_save_error", saveErr)
		}
	}

	if err := s.analytics.BumpAnalytics(ctx, sessionKey, s.now()); err != nil {
		slog.Error("analytics upsert failed", "sessionKey", sessionKey, "err", err)
		out.Persistence.AnalyticsErr = newError(ErrorStoreFailure, "analytics_upsert_error", err)
	}

	// Lead detection runs on the original inbound text, casing preserved.
	if matchesLead(in.Message) {
		lead := domain.LeadRecord{SessionKey: sessionKey, Message: in.Message, CreatedAt: s.now()}
		if err := s.leads.RecordLead(ctx, lead); err != nil {
			slog.Error("lead record failed", "sessionKey", sessionKey, "err", err)
			out.Persistence.LeadErr = newError(ErrorStoreFailure, "lead_record_error", err)
		}
	}

	return out, nil
}

// complete resolves the configured model and performs the single completion
// attempt. No retries: fail-soft is the caller's job.
func (s *ChatService) complete(ctx context.Context, turns []domain.Turn) (string, error) {
	if err := s.ensureConfig(ctx); err != nil {
		return "", newError(ErrorProviderFailure, "model_config_error", err)
	}
	reply, err := s.completions.Complete(ctx, s.model, buildCompletionMessages(turns))
	if err != nil {
		return "", newError(ErrorProviderFailure, "completion_error", err)
	}
	return reply, nil
}

// normalizeTurns applies the two-role coercion to a stored sequence before
// it is replayed to the completion service.
func normalizeTurns(history []domain.Turn) []domain.Turn {
	turns := make([]domain.Turn, 0, len(history)+2)
	for _, t := range history {
		turns = append(turns, domain.Turn{
			Role:    domain.NormalizeRole(t.Role),
			Content: t.Content,
		})
	}
	return turns
}

// buildCompletionMessages prefixes the fixed policy and lays the turns out
// oldest first.
func buildCompletionMessages(turns []domain.Turn) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(turns)+1)
	messages = append(messages, domain.ChatMessage{Role: "system", Content: systemPolicy()})
	for _, t := range turns {
		messages = append(messages, domain.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	return messages
}

func (s *ChatService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	model, err := s.params.GetParameter(ctx, s.paramPrefix+"/config/completion_model")
	if err != nil {
		return err
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("usecase: completion model parameter is empty")
	}

	s.model = model
	s.cacheLoaded = true
	return nil
}
