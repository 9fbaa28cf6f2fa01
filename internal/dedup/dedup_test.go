package dedup

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := HammingDistance(tc.hash1, tc.hash2)
			if result != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d",
					tc.hash1, tc.hash2, result, tc.expected)
			}
		})
	}
}

// gradientImage renders a deterministic test photo; offset shifts the pattern
// so different offsets produce visually different images.
func gradientImage(t *testing.T, offset int, quality int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{
				uint8((x*4 + offset) % 256),
				uint8((y*4 + offset*3) % 256),
				uint8((x + y + offset*7) % 256),
				255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestComputeDeterministic(t *testing.T) {
	data := gradientImage(t, 0, 90)

	first, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	second, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if first.ContentHash != second.ContentHash {
		t.Error("content hash not deterministic")
	}
	if first.PHashBits != second.PHashBits || first.DHashBits != second.DHashBits {
		t.Error("perceptual hashes not deterministic")
	}
	if first.ContentHash == "" || first.PHash == "" || first.DHash == "" {
		t.Errorf("empty hash fields: %+v", first)
	}
}

func TestComputeRejectsGarbage(t *testing.T) {
	if _, err := Compute([]byte("not an image")); err == nil {
		t.Error("expected error for undecodable data")
	}
}

func TestRecompressionStaysClose(t *testing.T) {
	original := gradientImage(t, 0, 95)
	recompressed := gradientImage(t, 0, 40)
	other := gradientImage(t, 31, 95)

	fpOrig, err := Compute(original)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	fpRecomp, err := Compute(recompressed)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	fpOther, err := Compute(other)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if fpOrig.ContentHash == fpRecomp.ContentHash {
		t.Fatal("recompression should change the content hash")
	}

	closeDist := HammingDistance(fpOrig.PHashBits, fpRecomp.PHashBits)
	farDist := HammingDistance(fpOrig.PHashBits, fpOther.PHashBits)
	if closeDist >= farDist {
		t.Errorf("recompressed distance %d not smaller than distinct-photo distance %d", closeDist, farDist)
	}
}

// stripeImage renders a high-contrast vertical stripe pattern, visually
// unrelated to the gradient images.
func stripeImage(t *testing.T, quality int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := uint8(20)
			if (x/8)%2 == 0 {
				c = 235
			}
			img.Set(x, y, color.RGBA{c, c, c, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// fakeIndex is an in-memory Index for checker tests.
type fakeIndex struct {
	byContent map[string]string
	known     []KnownHashes
}

func (f *fakeIndex) PhotoByContentHash(_ context.Context, hash string) (string, error) {
	return f.byContent[hash], nil
}

func (f *fakeIndex) PerceptualHashes(_ context.Context) ([]KnownHashes, error) {
	return f.known, nil
}

func TestCheckerExactDuplicate(t *testing.T) {
	data := gradientImage(t, 0, 90)
	fp, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	index := &fakeIndex{byContent: map[string]string{fp.ContentHash: "photo-1"}}
	checker := NewChecker(index, 10)

	res, err := checker.Check(context.Background(), data)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Verdict != ExactDuplicate {
		t.Errorf("verdict = %q; want exact_duplicate", res.Verdict)
	}
	if res.DuplicateOf != "photo-1" {
		t.Errorf("DuplicateOf = %q; want photo-1", res.DuplicateOf)
	}
}

func TestCheckerNearDuplicate(t *testing.T) {
	original := gradientImage(t, 0, 95)
	recompressed := gradientImage(t, 0, 40)

	fpOrig, err := Compute(original)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	index := &fakeIndex{
		byContent: map[string]string{fpOrig.ContentHash: "photo-1"},
		known:     []KnownHashes{{PhotoID: "photo-1", PHashBits: fpOrig.PHashBits, DHashBits: fpOrig.DHashBits}},
	}
	checker := NewChecker(index, 16)

	res, err := checker.Check(context.Background(), recompressed)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Verdict != NearDuplicate {
		t.Errorf("verdict = %q; want near_duplicate", res.Verdict)
	}
	if res.DuplicateOf != "photo-1" {
		t.Errorf("DuplicateOf = %q; want photo-1", res.DuplicateOf)
	}
}

// A recompression can leave the DCT hash far off while the gradient hash
// stays put; the close gradient hash alone must flag the pair.
func TestCheckerNearDuplicateDHashAlone(t *testing.T) {
	data := gradientImage(t, 0, 90)
	fp, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	index := &fakeIndex{known: []KnownHashes{{
		PhotoID:   "photo-1",
		PHashBits: fp.PHashBits ^ 0x0FFFFFF00FFFFFF0,
		DHashBits: fp.DHashBits,
	}}}
	checker := NewChecker(index, 10)

	res, err := checker.Check(context.Background(), data)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Verdict != NearDuplicate {
		t.Errorf("verdict = %q; want near_duplicate", res.Verdict)
	}
	if res.DuplicateOf != "photo-1" {
		t.Errorf("DuplicateOf = %q; want photo-1", res.DuplicateOf)
	}
}

func TestCheckerUnique(t *testing.T) {
	first := gradientImage(t, 0, 95)
	second := stripeImage(t, 95)

	fpFirst, err := Compute(first)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	index := &fakeIndex{
		byContent: map[string]string{fpFirst.ContentHash: "photo-1"},
		known:     []KnownHashes{{PhotoID: "photo-1", PHashBits: fpFirst.PHashBits, DHashBits: fpFirst.DHashBits}},
	}
	// Tight threshold: distinct photos must come out unique.
	checker := NewChecker(index, 4)

	res, err := checker.Check(context.Background(), second)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Verdict != Unique {
		t.Errorf("verdict = %q; want unique", res.Verdict)
	}
}
