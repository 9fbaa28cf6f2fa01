// Package dedup fingerprints submitted photos and checks them against the
// already-processed corpus. A strong content hash catches bit-identical
// resubmissions; perceptual hashes catch re-exports and recompressions.
package dedup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Fingerprint holds all hashes computed for one photo.
type Fingerprint struct {
	ContentHash string `json:"content_hash"` // SHA-256 of the raw bytes
	PHash       string `json:"phash"`        // 64-bit perceptual hash as hex
	DHash       string `json:"dhash"`        // 64-bit difference hash as hex
	PHashBits   uint64 `json:"-"`
	DHashBits   uint64 `json:"-"`
}

// Compute fingerprints raw image bytes. The content hash is always computed;
// perceptual hashing requires a decodable image.
func Compute(imageData []byte) (*Fingerprint, error) {
	sum := sha256.Sum256(imageData)

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode image for fingerprinting: %w", err)
	}

	pHash := perceptualHash(img)
	dHash := differenceHash(img)

	return &Fingerprint{
		ContentHash: hex.EncodeToString(sum[:]),
		PHash:       fmt.Sprintf("%016x", pHash),
		DHash:       fmt.Sprintf("%016x", dHash),
		PHashBits:   pHash,
		DHashBits:   dHash,
	}, nil
}

// HammingDistance counts differing bits between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // clear lowest set bit
	}
	return distance
}

// perceptualHash computes a DCT-based hash: resize to 32x32 grayscale, take
// the 63 low-frequency AC coefficients of the 8x8 block and threshold each
// against their median.
func perceptualHash(img image.Image) uint64 {
	gray := grayscale(scale(img, 32, 32))
	dct := dct2d(gray)

	lowFreq := make([]float64, 0, 63)
	for u := range 8 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue // DC carries only overall brightness
			}
			lowFreq = append(lowFreq, dct[u][v])
		}
	}

	med := median(lowFreq)

	var hash uint64
	for i, c := range lowFreq {
		if c > med {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// differenceHash computes a 64-bit gradient hash: resize to 9x8 grayscale and
// compare horizontally adjacent pixels.
func differenceHash(img image.Image) uint64 {
	gray := grayscale(scale(img, 9, 8))

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

func scale(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func grayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}

func dct2d(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}
	return dct
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
