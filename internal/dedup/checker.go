package dedup

import (
	"context"
	"fmt"
)

// Verdict classifies a submission against the processed corpus.
type Verdict string

const (
	Unique Verdict = "unique"
	// ExactDuplicate means bit-identical content: the submission is linked
	// to the existing photo and not reprocessed.
	ExactDuplicate Verdict = "exact_duplicate"
	// NearDuplicate means a recompressed or re-exported variant. The photo
	// still goes through the pipeline, flagged for the reviewer; a false
	// positive here must never drop a legitimate photo.
	NearDuplicate Verdict = "near_duplicate"
)

// Result carries the verdict and, for duplicates, the id of the existing photo.
type Result struct {
	Verdict     Verdict
	DuplicateOf string
	Fingerprint *Fingerprint
}

// KnownHashes is one processed photo's hash record, as stored in the index.
type KnownHashes struct {
	PhotoID   string
	PHashBits uint64
	DHashBits uint64
}

// Index is the lookup side of the processed-photo hash store.
type Index interface {
	// PhotoByContentHash returns the id of the photo with this exact
	// content hash, or "" when none exists.
	PhotoByContentHash(ctx context.Context, contentHash string) (string, error)
	// PerceptualHashes returns the hash records of all processed photos.
	PerceptualHashes(ctx context.Context) ([]KnownHashes, error)
}

// Checker runs the two-stage duplicate check.
type Checker struct {
	index            Index
	hammingThreshold int
}

func NewChecker(index Index, hammingThreshold int) *Checker {
	return &Checker{index: index, hammingThreshold: hammingThreshold}
}

// Check fingerprints the submission and classifies it. Exact match wins over
// near match; among near matches the smallest hamming distance wins.
func (c *Checker) Check(ctx context.Context, imageData []byte) (*Result, error) {
	fp, err := Compute(imageData)
	if err != nil {
		return nil, err
	}

	existing, err := c.index.PhotoByContentHash(ctx, fp.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("content hash lookup: %w", err)
	}
	if existing != "" {
		return &Result{Verdict: ExactDuplicate, DuplicateOf: existing, Fingerprint: fp}, nil
	}

	known, err := c.index.PerceptualHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("perceptual hash lookup: %w", err)
	}

	bestID := ""
	bestDist := c.hammingThreshold + 1
	for _, k := range known {
		pDist := HammingDistance(fp.PHashBits, k.PHashBits)
		dDist := HammingDistance(fp.DHashBits, k.DHashBits)
		// Either hash within threshold flags the pair. Recompression can
		// move the DCT hash well past the threshold while the gradient
		// hash barely budges, so requiring both would miss re-exports.
		if dist := min(pDist, dDist); dist < bestDist {
			bestDist = dist
			bestID = k.PhotoID
		}
	}
	if bestID != "" {
		return &Result{Verdict: NearDuplicate, DuplicateOf: bestID, Fingerprint: fp}, nil
	}

	return &Result{Verdict: Unique, Fingerprint: fp}, nil
}
