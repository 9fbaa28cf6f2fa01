package caption

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/clubgallery/photoflow/internal/config"
)

func TestNewDisabled(t *testing.T) {
	p, err := New(context.Background(), &config.CaptionConfig{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p != nil {
		t.Errorf("New() with empty provider = %T; want nil", p)
	}
}

func TestNewRejectsMisconfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.CaptionConfig
	}{
		{"openai without token", config.CaptionConfig{Provider: "openai"}},
		{"gemini without key", config.CaptionConfig{Provider: "gemini"}},
		{"unknown provider", config.CaptionConfig{Provider: "claude"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(context.Background(), &tt.cfg); err == nil {
				t.Error("New() error = nil; want error")
			}
		})
	}
}

func TestCleanCaption(t *testing.T) {
	if got := cleanCaption("  Players warming up before the match.  "); got != "Players warming up before the match." {
		t.Errorf("cleanCaption() = %q", got)
	}
	long := strings.Repeat("a", 500)
	if got := cleanCaption(long); len(got) != maxCaptionLength {
		t.Errorf("cleanCaption() length = %d; want %d", len(got), maxCaptionLength)
	}
}

func TestResizeImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1600, 900))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}

	out, err := resizeImage(buf.Bytes(), 800)
	if err != nil {
		t.Fatalf("resizeImage() error = %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode resized: %v", err)
	}
	if cfg.Width != 800 || cfg.Height != 450 {
		t.Errorf("resized to %dx%d; want 800x450", cfg.Width, cfg.Height)
	}

	if _, err := resizeImage([]byte("not an image"), 800); err == nil {
		t.Error("resizeImage() on garbage = nil error; want error")
	}
}
