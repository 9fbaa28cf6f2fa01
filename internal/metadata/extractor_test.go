package metadata

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"
)

func encodeTestJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 6), uint8(y * 8), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestExtractFallsBackToFileTime(t *testing.T) {
	data := encodeTestJPEG(t)
	modTime := time.Date(2025, 3, 9, 14, 30, 0, 0, time.UTC)

	meta, err := Extract(data, modTime)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !meta.FromFileTime {
		t.Error("expected FromFileTime for a JPEG without EXIF")
	}
	if !meta.CapturedAt.Equal(modTime) {
		t.Errorf("CapturedAt = %v; want file mod time %v", meta.CapturedAt, modTime)
	}
	if meta.HasGPS() {
		t.Error("expected no GPS for a JPEG without EXIF")
	}
	if meta.Width != 40 || meta.Height != 30 {
		t.Errorf("dimensions = %dx%d; want 40x30", meta.Width, meta.Height)
	}
}

func TestExtractCorruptImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
		{"truncated jpeg header", []byte{0xFF, 0xD8, 0xFF}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Extract(tc.data, time.Now())
			if !errors.Is(err, ErrCorruptImage) {
				t.Errorf("Extract() error = %v; want ErrCorruptImage", err)
			}
		})
	}
}

func TestExtractMissingMetadataIsNotAnError(t *testing.T) {
	// The degraded path must be distinguishable from the corrupt path.
	if _, err := Extract(encodeTestJPEG(t), time.Now()); err != nil {
		t.Fatalf("decodable image without EXIF must not error, got %v", err)
	}
}
