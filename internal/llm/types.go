// Package llm defines the contract between the bot and language-model providers.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/edgard/lunabot/internal/conversation"
)

// ErrAssetNotFound is returned by RetrieveFile for unknown or expired asset ids.
var ErrAssetNotFound = errors.New("asset not found")

// Request is one provider invocation.
type Request struct {
	// Turns is the full prompt, system Turn first.
	Turns []conversation.Turn
	// Image asks the provider to allow image generation in the reply.
	Image bool
}

// Response is the tagged provider result. AssetID and Caption are empty when the
// reply carries no generated image.
type Response struct {
	Text    string
	AssetID string
	Caption string
	// Payload is the provider's raw assistant message, replayed verbatim in history.
	Payload json.RawMessage
}

// HasAsset reports whether the reply references a generated image.
func (r *Response) HasAsset() bool {
	return r.AssetID != ""
}

// Turn returns the assistant Turn to store in history.
func (r *Response) Turn() conversation.Turn {
	return conversation.AssistantTurn(r.Text, r.Payload)
}

// Asset is a generated file in its transport encoding.
type Asset struct {
	// Data is base64 (standard encoding).
	Data     string
	MIMEType string
}

// Provider is a conversational language model. Implementations are safe for
// concurrent use; every method blocks on network I/O.
type Provider interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
	RetrieveFile(ctx context.Context, assetID string) (*Asset, error)
}
