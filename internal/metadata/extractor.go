// Package metadata reads capture time, GPS coordinates and camera info from
// image files. Missing or broken EXIF is not an error: the extractor degrades
// to the file modification time and the event matcher works date-only.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
)

// ErrCorruptImage marks images that cannot be decoded at all. Routed straight
// to manual review, never retried.
var ErrCorruptImage = errors.New("corrupt image")

// Metadata is the extraction result. CapturedAt is never nil: without EXIF it
// falls back to the file modification time and FromFileTime is set so the
// event matcher can treat the timestamp as low confidence.
type Metadata struct {
	CapturedAt   time.Time
	FromFileTime bool
	Lat          *float64
	Lon          *float64
	CameraMake   string
	CameraModel  string
	Width        int
	Height       int
}

// HasGPS reports whether both coordinates were present.
func (m *Metadata) HasGPS() bool {
	return m.Lat != nil && m.Lon != nil
}

// EXIF timestamp layout, e.g. "2025:06:14 18:03:22".
const exifTimeLayout = "2006:01:02 15:04:05"

// Extract parses image metadata. modTime is the submission file's
// modification time, used as the degraded capture-time fallback.
func Extract(data []byte, modTime time.Time) (*Metadata, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}

	meta := &Metadata{
		CapturedAt:   modTime.UTC(),
		FromFileTime: true,
		Width:        cfg.Width,
		Height:       cfg.Height,
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		// No EXIF block at all; the fallback metadata stands.
		return meta, nil
	}

	if taken, ok := capturedAt(x); ok {
		meta.CapturedAt = taken
		meta.FromFileTime = false
	}

	if lat, lon, err := x.LatLong(); err == nil {
		meta.Lat = &lat
		meta.Lon = &lon
	}

	meta.CameraMake = tagString(x, exif.Make)
	meta.CameraModel = tagString(x, exif.Model)

	return meta, nil
}

// capturedAt tries timestamp tags in order of preference.
func capturedAt(x *exif.Exif) (time.Time, bool) {
	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		if t, err := time.Parse(exifTimeLayout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func tagString(x *exif.Exif, field exif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}
