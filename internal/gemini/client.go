// Package gemini implements the llm.Provider contract on Google's Gemini API.
// Generated images arrive inline and are held in a small in-process cache until
// the bot retrieves them.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/edgard/lunabot/internal/config"
	"github.com/edgard/lunabot/internal/conversation"
	"github.com/edgard/lunabot/internal/llm"
)

// maxCachedAssets bounds the inline images waiting for RetrieveFile.
const maxCachedAssets = 32

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is a Gemini-backed provider. It is safe for concurrent use.
type Client struct {
	models        generator
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	model         string
	imageModel    string
	maxRetries    int
	retryDelay    time.Duration

	mu     sync.Mutex
	assets map[string]*genai.Blob
	order  []string
}

var _ llm.Provider = (*Client)(nil)

// NewClient creates a new Gemini client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newClient(gi.Models, cfg, log), nil
}

func newClient(models generator, cfg config.GeminiConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.Model, "image_model", cfg.ImageModel)
	return &Client{
		models:        models,
		log:           logger,
		contentConfig: baseCfg,
		model:         cfg.Model,
		imageModel:    cfg.ImageModel,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		assets:        make(map[string]*genai.Blob),
	}
}

// Invoke sends the conversation to Gemini. The system turn becomes the system
// instruction; image requests go to the image model with image output enabled.
func (c *Client) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	copyCfg := *c.contentConfig
	contents, system := buildContents(req.Turns)
	if system != "" {
		copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	model := c.model
	if req.Image {
		model = c.imageModel
		copyCfg.ResponseModalities = []string{"TEXT", "IMAGE"}
		// The image preview models reject system instructions.
		if copyCfg.SystemInstruction != nil {
			contents = append([]*genai.Content{genai.NewContentFromText(system, genai.RoleUser)}, contents...)
			copyCfg.SystemInstruction = nil
		}
	}

	c.log.DebugContext(ctx, "Generating reply", "model", model, "content_count", len(contents), "image", req.Image)

	resp, err := c.generateContentWithRetries(ctx, model, contents, &copyCfg)
	if err != nil {
		return nil, err
	}
	return c.extractResponse(ctx, resp)
}

// RetrieveFile pops a cached inline image and returns it base64-encoded.
func (c *Client) RetrieveFile(_ context.Context, assetID string) (*llm.Asset, error) {
	c.mu.Lock()
	blob, ok := c.assets[assetID]
	if ok {
		delete(c.assets, assetID)
	}
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", llm.ErrAssetNotFound, assetID)
	}
	return &llm.Asset{
		Data:     base64.StdEncoding.EncodeToString(blob.Data),
		MIMEType: blob.MIMEType,
	}, nil
}

// buildContents maps turns to genai contents and returns the system text separately.
// Assistant turns with a stored payload are replayed as the model content they came from.
func buildContents(turns []conversation.Turn) ([]*genai.Content, string) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleSystem:
			system = append(system, t.Text)
		case conversation.RoleAssistant:
			if len(t.Payload) > 0 {
				var content genai.Content
				if err := json.Unmarshal(t.Payload, &content); err == nil && len(content.Parts) > 0 {
					contents = append(contents, &content)
					continue
				}
			}
			// Image-only replies leave nothing to replay.
			if t.Text != "" {
				contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleModel))
			}
		default:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}

func (c *Client) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var genAiAPIError *genai.APIError
		code := 0
		if errors.As(err, &genAiAPIError) {
			code = genAiAPIError.Code
		}
		if code == 500 || code == 503 {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", code)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.retryDelay):
				}
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries with APIError", "error", err, "code", code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, code, err)
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

// extractResponse turns the first candidate into a tagged response. The first inline
// image, if any, is cached and its id becomes the asset id.
func (c *Client) extractResponse(ctx context.Context, resp *genai.GenerateContentResponse) (*llm.Response, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return nil, fmt.Errorf("request blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return nil, fmt.Errorf("gemini returned no content, finish reason: %s", finishReason)
	}

	var (
		texts   []string
		kept    []*genai.Part
		assetID string
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.InlineData != nil:
			if assetID == "" {
				assetID = c.storeAsset(part.InlineData)
			}
		case part.Text != "" && !part.Thought:
			texts = append(texts, part.Text)
			kept = append(kept, &genai.Part{Text: part.Text})
		}
	}

	replyText := strings.TrimSpace(strings.Join(texts, ""))
	if replyText == "" && assetID == "" {
		return nil, fmt.Errorf("gemini returned empty text")
	}

	out := &llm.Response{Text: replyText}
	if len(kept) > 0 {
		payload, err := json.Marshal(&genai.Content{Role: string(genai.RoleModel), Parts: kept})
		if err != nil {
			return nil, fmt.Errorf("failed to encode model content: %w", err)
		}
		out.Payload = payload
	}
	if assetID != "" {
		out.AssetID = assetID
		out.Caption = replyText
	}
	return out, nil
}

func (c *Client) storeAsset(blob *genai.Blob) string {
	id := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.assets[id] = blob
	c.order = append(c.order, id)
	for len(c.order) > maxCachedAssets {
		evicted := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.assets[evicted]; ok {
			delete(c.assets, evicted)
			c.log.Debug("Evicted unretrieved image", "asset_id", evicted)
		}
	}
	return id
}
