// Package whatsapp pushes outbound replies through the Meta Graph
// send-message API and exposes the webhook verify token. Credentials are
// resolved from the parameter store once per process.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// sendRequest is the Graph API text-message envelope.
type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}

type credentials struct {
	accessToken   string
	phoneNumberID string
	verifyToken   string
}

// Client is the outbound half of the WhatsApp channel adapter.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	credOnce sync.Once
	creds    credentials
	credErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client backed by the given paramstore.Getter for
// credential retrieval.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("whatsapp: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("whatsapp: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://graph.facebook.com/v18.0",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveCredentials(ctx context.Context) (credentials, error) {
	c.credOnce.Do(func() {
		c.creds, c.credErr = fetchCredentials(ctx, c.getter, c.paramPrefix)
	})
	return c.creds, c.credErr
}

func fetchCredentials(ctx context.Context, getter Getter, prefix string) (credentials, error) {
	var creds credentials
	var err error

	if creds.accessToken, err = fetchParam(ctx, getter, prefix+"/whatsapp-access-token"); err != nil {
		return credentials{}, err
	}
	if creds.phoneNumberID, err = fetchParam(ctx, getter, prefix+"/whatsapp-phone-number-id"); err != nil {
		return credentials{}, err
	}
	if creds.verifyToken, err = fetchParam(ctx, getter, prefix+"/whatsapp-verify-token"); err != nil {
		return credentials{}, err
	}
	return creds, nil
}

func fetchParam(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("whatsapp: fetch %s: %w", name, err)
	}
	val := strings.TrimSpace(raw)
	if val == "" {
		return "", fmt.Errorf("whatsapp: parameter %s is empty", name)
	}
	return val, nil
}

// VerifyToken returns the configured webhook verify token for the GET
// challenge handshake.
func (c *Client) VerifyToken(ctx context.Context) (string, error) {
	creds, err := c.resolveCredentials(ctx)
	if err != nil {
		return "", err
	}
	return creds.verifyToken, nil
}

// SendText pushes a text reply to the given platform contact. Failures are
// returned for logging; the inbound webhook ack does not depend on them.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("whatsapp: recipient must not be empty")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("whatsapp: body must not be empty")
	}

	creds, err := c.resolveCredentials(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: body},
	})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/" + creds.phoneNumberID + "/messages"
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if reqErr != nil {
		return fmt.Errorf("whatsapp: create send request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.accessToken)

	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return fmt.Errorf("whatsapp: send request failed: %w", doErr)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("whatsapp: unexpected status %d from %s: %s", res.StatusCode, url, string(buf))
	}
	return nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
