// Package gigachat implements the llm.Provider contract on the GigaChat REST API.
// Image generation is the model's built-in function: replies reference generated
// files with an inline <img src="ID" fuse="true"/> tag.
package gigachat

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/lunabot/internal/config"
	"github.com/edgard/lunabot/internal/conversation"
	"github.com/edgard/lunabot/internal/llm"
	"github.com/edgard/lunabot/internal/text"
)

// tokenSkew renews the access token this long before it expires.
const tokenSkew = time.Minute

// APIError is a non-2xx answer from the GigaChat API.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gigachat API error %d: %s", e.Code, e.Body)
}

func (e *APIError) retriable() bool {
	return e.Code == http.StatusInternalServerError || e.Code == http.StatusServiceUnavailable
}

// Client talks to GigaChat. It is safe for concurrent use.
type Client struct {
	cfg  config.GigaChatConfig
	http *http.Client
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

var _ llm.Provider = (*Client)(nil)

// NewClient creates a GigaChat client. Credentials are the base64 "client_id:secret"
// authorization key issued by the developer portal.
func NewClient(cfg config.GigaChatConfig, log *slog.Logger) (*Client, error) {
	if cfg.Credentials == "" {
		return nil, fmt.Errorf("gigachat credentials are required")
	}
	if log == nil {
		log = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in through gigachat.insecure_skip_verify
	}

	logger := log.With("component", "gigachat_client")
	logger.Info("GigaChat client initialized", "model", cfg.Model, "base_url", cfg.BaseURL)
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		log:  logger,
		now:  time.Now,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model        string            `json:"model"`
	Messages     []json.RawMessage `json:"messages"`
	FunctionCall string            `json:"function_call,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      json.RawMessage `json:"message"`
		FinishReason string          `json:"finish_reason"`
	} `json:"choices"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
}

// Invoke sends the conversation to the chat completions endpoint. Function calling is
// always left on auto so the model may answer with a generated image.
func (c *Client) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	messages, err := encodeTurns(req.Turns)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(chatRequest{Model: c.cfg.Model, Messages: messages, FunctionCall: "auto"})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	c.log.DebugContext(ctx, "Invoking GigaChat", "turns", len(req.Turns), "image", req.Image)

	var raw []byte
	err = c.withRetries(ctx, "chat_completions", func() error {
		raw, err = c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", "application/json", body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gigachat completion failed: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("invalid chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("gigachat returned no choices")
	}

	payload := resp.Choices[0].Message
	var msg chatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("invalid assistant message: %w", err)
	}

	out := &llm.Response{Text: msg.Content, Payload: payload}
	if id, ok := text.FindMarker(msg.Content); ok {
		out.AssetID = id
		out.Caption = strings.TrimSpace(text.StripMarkers(msg.Content))
	}
	c.log.DebugContext(ctx, "GigaChat replied", "finish_reason", resp.Choices[0].FinishReason, "asset", out.AssetID != "")
	return out, nil
}

// RetrieveFile downloads a generated image and returns it base64-encoded.
func (c *Client) RetrieveFile(ctx context.Context, assetID string) (*llm.Asset, error) {
	var raw []byte
	err := c.withRetries(ctx, "file_content", func() error {
		var err error
		raw, err = c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/files/"+url.PathEscape(assetID)+"/content", "application/jpg", nil)
		return err
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", llm.ErrAssetNotFound, assetID)
		}
		return nil, fmt.Errorf("gigachat file download failed: %w", err)
	}
	return &llm.Asset{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: http.DetectContentType(raw),
	}, nil
}

// encodeTurns renders history as API messages. Assistant turns that carry the
// provider's raw message are replayed verbatim.
func encodeTurns(turns []conversation.Turn) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(turns))
	for _, t := range turns {
		if t.Role == conversation.RoleAssistant && len(t.Payload) > 0 {
			out = append(out, t.Payload)
			continue
		}
		b, err := json.Marshal(chatMessage{Role: string(t.Role), Content: t.Text})
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s turn: %w", t.Role, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, accept string, body []byte) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	raw, err := c.send(req)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		c.invalidateToken()
	}
	return raw, err
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}

// accessToken returns the cached OAuth token, fetching a new one when it is about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires.Add(-tokenSkew)) {
		return c.token, nil
	}

	form := url.Values{"scope": {c.cfg.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+c.cfg.Credentials)
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	raw, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("gigachat authorization failed: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("invalid token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response carries no access token")
	}

	c.token = tok.AccessToken
	c.expires = time.UnixMilli(tok.ExpiresAt)
	c.log.DebugContext(ctx, "GigaChat access token refreshed", "expires_at", c.expires)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) withRetries(ctx context.Context, op string, call func() error) error {
	var err error
	for i := 0; i <= c.cfg.MaxRetries; i++ {
		if err = call(); err == nil {
			return nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.retriable() {
			return err
		}
		if i == c.cfg.MaxRetries {
			c.log.ErrorContext(ctx, "GigaChat call failed after max retries", "operation", op, "code", apiErr.Code)
			return fmt.Errorf("failed after %d retries: %w", c.cfg.MaxRetries, err)
		}

		c.log.InfoContext(ctx, "Retrying GigaChat call", "operation", op, "attempt", i+1, "delay", c.cfg.RetryDelay, "code", apiErr.Code)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return err
}
