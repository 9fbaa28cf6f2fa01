// Package caption generates short gallery captions for photos through a
// vision model. Captions are cosmetic: every provider error is surfaced
// to the caller and the pipeline treats them as non-fatal.
package caption

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/clubgallery/photoflow/internal/config"
)

//go:embed prompts/caption.txt
var captionPrompt string

const (
	// maxImageSize bounds the long edge sent to the model, larger inputs
	// only cost more without improving a one-line caption.
	maxImageSize = 800
	// maxCaptionLength truncates runaway model output.
	maxCaptionLength = 200
)

// Provider is a vision backend that can caption a photo.
type Provider interface {
	Name() string
	Caption(ctx context.Context, imageData []byte) (string, error)
}

// New builds the configured provider. A empty provider name disables
// captioning and returns nil without error.
func New(ctx context.Context, cfg *config.CaptionConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		if cfg.OpenAIToken == "" {
			return nil, fmt.Errorf("caption provider openai requires a token")
		}
		return NewOpenAIProvider(cfg.OpenAIToken, cfg.Model), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("caption provider gemini requires an API key")
		}
		return NewGeminiProvider(ctx, cfg.GeminiKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown caption provider %q", cfg.Provider)
	}
}

// captionResponse is the JSON shape both providers are told to emit.
type captionResponse struct {
	Caption string `json:"caption"`
}

func cleanCaption(raw string) string {
	caption := strings.TrimSpace(raw)
	if len(caption) > maxCaptionLength {
		caption = caption[:maxCaptionLength]
	}
	return caption
}
