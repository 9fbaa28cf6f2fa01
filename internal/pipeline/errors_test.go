package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/clubgallery/photoflow/internal/dedup"
	"github.com/clubgallery/photoflow/internal/facematch"
	"github.com/clubgallery/photoflow/internal/metadata"
	"github.com/clubgallery/photoflow/internal/reference"
	"github.com/clubgallery/photoflow/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"corrupt image", metadata.ErrCorruptImage, FailurePermanent},
		{"wrapped corrupt image", fmt.Errorf("extract: %w", metadata.ErrCorruptImage), FailurePermanent},
		{"photo row gone", store.ErrPhotoNotFound, FailurePermanent},
		{"face service 422", &facematch.ServiceError{StatusCode: 422}, FailurePermanent},
		{"face service 500", &facematch.ServiceError{StatusCode: 500}, FailureTransient},
		{"face service 503 wrapped", fmt.Errorf("detect: %w", &facematch.ServiceError{StatusCode: 503}), FailureTransient},
		{"snapshot unavailable", reference.ErrSnapshotUnavailable, FailureTransient},
		{"deadline", context.DeadlineExceeded, FailureTransient},
		{"cancelled", context.Canceled, FailureTransient},
		{"unknown", errors.New("connection reset"), FailureTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v; want %v", tt.err, got, tt.want)
			}
		})
	}
}

// A missing snapshot stalls every photo the same way, so it must route
// to the queue-wide deferral instead of the per-photo retry budget.
func TestDeferProcessing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"snapshot unavailable", reference.ErrSnapshotUnavailable, true},
		{"wrapped snapshot unavailable", fmt.Errorf("match: %w", reference.ErrSnapshotUnavailable), true},
		{"corrupt image", metadata.ErrCorruptImage, false},
		{"face service 500", &facematch.ServiceError{StatusCode: 500}, false},
		{"unknown", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeferProcessing(tt.err); got != tt.want {
				t.Errorf("DeferProcessing(%v) = %v; want %v", tt.err, got, tt.want)
			}
		})
	}
}

type stubIndex struct {
	contentMatch string
	hashes       []dedup.KnownHashes
}

func (s stubIndex) PhotoByContentHash(_ context.Context, _ string) (string, error) {
	return s.contentMatch, nil
}

func (s stubIndex) PerceptualHashes(_ context.Context) ([]dedup.KnownHashes, error) {
	return s.hashes, nil
}

func TestSelfExcludingIndex(t *testing.T) {
	inner := stubIndex{
		contentMatch: "self",
		hashes: []dedup.KnownHashes{
			{PhotoID: "self", PHashBits: 1, DHashBits: 1},
			{PhotoID: "other", PHashBits: 2, DHashBits: 2},
		},
	}
	idx := selfExcludingIndex{inner: inner, selfID: "self"}

	id, err := idx.PhotoByContentHash(context.Background(), "abc")
	if err != nil {
		t.Fatalf("PhotoByContentHash: %v", err)
	}
	if id != "" {
		t.Errorf("self content match leaked through: %q", id)
	}

	hashes, err := idx.PerceptualHashes(context.Background())
	if err != nil {
		t.Fatalf("PerceptualHashes: %v", err)
	}
	if len(hashes) != 1 || hashes[0].PhotoID != "other" {
		t.Errorf("PerceptualHashes = %+v; want only \"other\"", hashes)
	}
}
