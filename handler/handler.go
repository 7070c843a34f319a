// Package handler bridges API Gateway proxy events to the chat router and
// registration service. It owns transport concerns only: routing, payload
// parsing, status codes, and the webhook handshake.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"assistant-gateway/internal/usecase"
)

type ChatUseCase interface {
	Handle(ctx context.Context, in usecase.HandleInput) (usecase.HandleOutput, error)
}

type RegistrationUseCase interface {
	Register(ctx context.Context, in usecase.RegisterInput) error
	ExportCSV(ctx context.Context) (string, error)
}

// MessageSender is the outbound half of the messaging-platform channel.
type MessageSender interface {
	SendText(ctx context.Context, to, body string) error
	VerifyToken(ctx context.Context) (string, error)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Reply    string `json:"reply"`
	Language string `json:"language,omitempty"`
}

type registerRequest struct {
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	ProjectDetails string `json:"projectDetails"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// webhookEnvelope is the platform-defined delivery payload. Only the fields
// this gateway reads are declared; everything else is ignored.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type Handler struct {
	chat     ChatUseCase
	regs     RegistrationUseCase
	platform MessageSender
}

func NewHandler(chat ChatUseCase, regs RegistrationUseCase, platform MessageSender) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if regs == nil {
		return nil, errors.New("handler: registration use case must not be nil")
	}
	if platform == nil {
		return nil, errors.New("handler: message sender must not be nil")
	}
	return &Handler{chat: chat, regs: regs, platform: platform}, nil
}

// Handle routes one API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)

	switch {
	case req.HTTPMethod == http.MethodPost && req.Path == "/chat":
		return h.handleChat(ctx, req, corrID), nil
	case req.HTTPMethod == http.MethodGet && req.Path == "/webhook":
		return h.handleWebhookVerify(ctx, req, corrID), nil
	case req.HTTPMethod == http.MethodPost && req.Path == "/webhook":
		return h.handleWebhookDelivery(ctx, req, corrID), nil
	case req.HTTPMethod == http.MethodPost && req.Path == "/register":
		return h.handleRegister(ctx, req, corrID), nil
	case req.HTTPMethod == http.MethodGet && req.Path == "/export-registrations":
		return h.handleExport(ctx, corrID), nil
	default:
		return jsonResponse(http.StatusNotFound, errorResponse{Error: "NOT_FOUND"}, corrID), nil
	}
}

// handleChat is the synchronous widget channel: JSON in, JSON out. Missing
// fields degrade to placeholder replies rather than HTTP errors.
func (h *Handler) handleChat(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var body chatRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)}, corrID)
	}

	out, err := h.chat.Handle(ctx, usecase.HandleInput{
		SessionKey: body.SessionID,
		Message:    body.Message,
		Channel:    usecase.ChannelWidget,
	})
	if err != nil {
		slog.Error("chat handle failed", "correlationId", corrID, "err", err)
		return jsonResponse(http.StatusOK, chatResponse{Reply: usecase.FallbackReply}, corrID)
	}
	logPersistence(out.Persistence, corrID)

	return jsonResponse(http.StatusOK, chatResponse{Reply: out.Reply, Language: string(out.Language)}, corrID)
}

// handleWebhookVerify answers the one-time platform challenge handshake.
func (h *Handler) handleWebhookVerify(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	mode := req.QueryStringParameters["hub.mode"]
	token := req.QueryStringParameters["hub.verify_token"]
	challenge := req.QueryStringParameters["hub.challenge"]

	expected, err := h.platform.VerifyToken(ctx)
	if err != nil {
		slog.Error("verify token unavailable", "correlationId", corrID, "err", err)
		return textResponse(http.StatusForbidden, "", corrID)
	}

	if mode == "subscribe" && token != "" && token == expected {
		return textResponse(http.StatusOK, challenge, corrID)
	}
	return textResponse(http.StatusForbidden, "", corrID)
}

// handleWebhookDelivery accepts an inbound platform envelope. Once the top
// level parses, the platform always gets a success ack: its redelivery is
// keyed on the ack, not on whether the outbound reply succeeded.
func (h *Handler) handleWebhookDelivery(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var envelope webhookEnvelope
	if err := json.Unmarshal([]byte(req.Body), &envelope); err != nil {
		slog.Error("webhook envelope malformed", "correlationId", corrID, "err", err)
		return textResponse(http.StatusInternalServerError, "", corrID)
	}

	from, text, ok := extractMessage(envelope)
	if !ok {
		// Read receipts and status updates carry no user message; ack them
		// silently so the platform does not redeliver.
		return textResponse(http.StatusOK, "", corrID)
	}

	out, err := h.chat.Handle(ctx, usecase.HandleInput{
		SessionKey: from,
		Message:    text,
		Channel:    usecase.ChannelWhatsApp,
	})
	if err != nil {
		slog.Error("webhook handle failed", "correlationId", corrID, "err", err)
		return textResponse(http.StatusOK, "", corrID)
	}
	logPersistence(out.Persistence, corrID)

	if err := h.platform.SendText(ctx, from, out.Reply); err != nil {
		slog.Error("outbound delivery failed", "correlationId", corrID, "to", from, "err", err)
	}
	return textResponse(http.StatusOK, "", corrID)
}

func (h *Handler) handleRegister(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var body registerRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)}, corrID)
	}

	err := h.regs.Register(ctx, usecase.RegisterInput{
		FullName:       body.FullName,
		Email:          body.Email,
		Phone:          body.Phone,
		ProjectDetails: body.ProjectDetails,
	})
	if err != nil {
		status, resp := mapUseCaseError(err)
		if status >= http.StatusInternalServerError {
			slog.Error("registration failed", "correlationId", corrID, "err", err)
		}
		return jsonResponse(status, resp, corrID)
	}
	return jsonResponse(http.StatusCreated, map[string]string{"status": "created"}, corrID)
}

func (h *Handler) handleExport(ctx context.Context, corrID string) events.APIGatewayProxyResponse {
	csvBody, err := h.regs.ExportCSV(ctx)
	if err != nil {
		slog.Error("registration export failed", "correlationId", corrID, "err", err)
		status, resp := mapUseCaseError(err)
		return jsonResponse(status, resp, corrID)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":        "text/csv",
			"Content-Disposition": `attachment; filename="registrations.csv"`,
			"X-Correlation-Id":    corrID,
		},
		Body: csvBody,
	}
}

func mapUseCaseError(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput, usecase.ErrorInputMissing:
		return http.StatusBadRequest, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
	default:
		return http.StatusInternalServerError, errorResponse{Error: string(ucErr.Code)}
	}
}

// extractMessage digs the first user message out of the envelope. Every
// level may be absent; absence is not an error.
func extractMessage(envelope webhookEnvelope) (from, text string, ok bool) {
	if len(envelope.Entry) == 0 || len(envelope.Entry[0].Changes) == 0 {
		return "", "", false
	}
	msgs := envelope.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return "", "", false
	}
	msg := msgs[0]
	if msg.Text == nil || strings.TrimSpace(msg.Text.Body) == "" || strings.TrimSpace(msg.From) == "" {
		return "", "", false
	}
	return msg.From, msg.Text.Body, true
}

func logPersistence(report usecase.PersistReport, corrID string) {
	if report.Clean() {
		return
	}
	slog.Warn("best-effort persistence incomplete",
		"correlationId", corrID,
		"transcriptErr", report.TranscriptErr,
		"analyticsErr", report.AnalyticsErr,
		"leadErr", report.LeadErr,
	)
}

// correlationID reuses the caller-provided header, case-insensitive, or
// mints a fresh one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "X-Correlation-Id") && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return uuid.NewString()
}

func jsonResponse(status int, body any, corrID string) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		payload = []byte(`{"error":"INTERNAL_ERROR"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": corrID,
		},
		Body: string(payload),
	}
}

func textResponse(status int, body, corrID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "text/plain",
			"X-Correlation-Id": corrID,
		},
		Body: body,
	}
}
