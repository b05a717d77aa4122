package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/edgard/lunabot/internal/llm"
	"github.com/edgard/lunabot/internal/tempfile"
	"github.com/edgard/lunabot/internal/text"
)

var errAssetDecode = errors.New("asset decode failed")

// sendAsset fetches the generated image, stores it in a temp file and sends it with
// the caption. The file is removed once the send finishes, successful or not.
// Caption text beyond the first chunk follows as plain messages.
func sendAsset(ctx context.Context, deps HandlerDeps, channelID string, resp *llm.Response) {
	log := deps.Logger.With("handler", "image", "asset_id", resp.AssetID)
	chunks := text.Split(resp.Caption, deps.Config.Bot.MaxMessageLength)

	deps.Executor.Go(ctx, "send_image", func(ctx context.Context) error {
		asset, err := deps.Provider.RetrieveFile(ctx, resp.AssetID)
		if err != nil {
			return fmt.Errorf("failed to retrieve image: %w", err)
		}

		data, err := base64.StdEncoding.DecodeString(asset.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", errAssetDecode, err)
		}
		if len(data) == 0 {
			return fmt.Errorf("%w: empty image", errAssetDecode)
		}

		res, err := deps.Files.Write(tempfile.ImagePrefix+"*"+imageExt(asset.MIMEType), data)
		if err != nil {
			return err
		}
		defer func() {
			if err := res.Release(); err != nil {
				log.ErrorContext(ctx, "Failed to remove image file", "error", err)
			}
		}()

		var caption string
		rest := chunks
		if len(rest) > 0 {
			caption, rest = rest[0], rest[1:]
		}
		if err := deps.Client.SendFile(ctx, channelID, caption, res.Path()); err != nil {
			return fmt.Errorf("failed to send image: %w", err)
		}
		for _, chunk := range rest {
			if err := deps.Client.SendMessage(ctx, channelID, chunk); err != nil {
				return fmt.Errorf("failed to send caption: %w", err)
			}
		}
		return nil
	}, func(err error) {
		switch {
		case err == nil:
			log.DebugContext(ctx, "Image sent", "channel_id", channelID)
		case errors.Is(err, errAssetDecode):
			log.WarnContext(ctx, "Generated image could not be decoded", "error", err)
			sendText(ctx, deps, channelID, deps.Config.Messages.ImageDecodeError)
		default:
			log.ErrorContext(ctx, "Image delivery failed", "error", err)
			sendError(ctx, deps, channelID, err)
		}
	})
}

func imageExt(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
