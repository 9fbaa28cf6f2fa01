package derivative

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Tier describes one derivative rendition.
type Tier struct {
	Name    string
	Width   int
	Quality int
}

// Derivative is a rendered (or already present) tier on disk.
type Derivative struct {
	Tier   string
	Path   string
	Width  int
	Height int
}

// Generator renders derivative renditions of originals under a storage
// root. Paths are keyed by content hash, so regenerating a photo is
// idempotent and two uploads of the same bytes share their derivatives.
type Generator struct {
	root  string
	tiers []Tier
}

// NewGenerator creates a generator writing under root.
func NewGenerator(root string, tiers []Tier) *Generator {
	return &Generator{root: root, tiers: tiers}
}

// StoreOriginal persists the original bytes under the originals tree.
// An already present original is left untouched.
func (g *Generator) StoreOriginal(contentHash string, data []byte, ext string) (string, error) {
	if ext == "" || ext == ".jpeg" {
		ext = ".jpg"
	}
	path := filepath.Join(g.root, "originals", shard(contentHash), contentHash+ext)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := writeAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to store original: %w", err)
	}
	return path, nil
}

// Generate renders every configured tier for the image. A tier whose
// file already exists is returned as-is. One failed tier does not stop
// the others; all failures come back joined in the returned error
// alongside the tiers that did succeed.
func (g *Generator) Generate(contentHash string, imageData []byte) ([]Derivative, error) {
	src, err := imaging.Decode(bytes.NewReader(imageData), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	out := make([]Derivative, 0, len(g.tiers))
	var errs []error
	for _, tier := range g.tiers {
		d, err := g.render(tier, contentHash, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("tier %s: %w", tier.Name, err))
			continue
		}
		out = append(out, d)
	}
	return out, errors.Join(errs...)
}

// Path returns where a tier for the given content hash lives on disk.
func (g *Generator) Path(tierName, contentHash string) string {
	return filepath.Join(g.root, "derivatives", tierName, shard(contentHash), contentHash+".jpg")
}

func (g *Generator) render(tier Tier, contentHash string, src image.Image) (Derivative, error) {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Never upscale a small original.
	targetWidth := tier.Width
	if width <= targetWidth {
		targetWidth = width
	}

	resized := src
	if targetWidth < width {
		resized = imaging.Resize(src, targetWidth, 0, imaging.Lanczos)
		b := resized.Bounds()
		width, height = b.Dx(), b.Dy()
	}

	path := g.Path(tier.Name, contentHash)
	if _, err := os.Stat(path); err == nil {
		return Derivative{Tier: tier.Name, Path: path, Width: width, Height: height}, nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(tier.Quality)); err != nil {
		return Derivative{}, fmt.Errorf("failed to encode: %w", err)
	}
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return Derivative{}, err
	}

	return Derivative{Tier: tier.Name, Path: path, Width: width, Height: height}, nil
}

// shard spreads files over subdirectories so one dir never holds the
// whole collection.
func shard(contentHash string) string {
	if len(contentHash) < 2 {
		return "00"
	}
	return contentHash[:2]
}

// writeAtomic writes via a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
