package pipeline

import (
	"context"
	"errors"

	"github.com/clubgallery/photoflow/internal/facematch"
	"github.com/clubgallery/photoflow/internal/metadata"
	"github.com/clubgallery/photoflow/internal/reference"
	"github.com/clubgallery/photoflow/internal/store"
)

// FailureKind classifies a processing failure for the retry decision.
type FailureKind int

const (
	// FailureTransient: infrastructure hiccup, retry with backoff.
	FailureTransient FailureKind = iota
	// FailurePermanent: retrying cannot help, the photo goes to manual
	// review immediately.
	FailurePermanent
)

// DeferProcessing reports whether a failure stalls the whole queue
// rather than the one photo. Without a reference snapshot every claim
// fails the same way, so the worker hands the photo back without
// spending an attempt and pauses claiming instead of parking photos
// one by one.
func DeferProcessing(err error) bool {
	return errors.Is(err, reference.ErrSnapshotUnavailable)
}

// Classify decides whether a processing error is worth retrying.
// Corrupt input never is; client errors from the face service mean the
// payload is the problem, not the service. Everything else, timeouts
// and unknown errors included, is retried within the attempt budget.
// Queue-wide failures are routed through DeferProcessing before they
// reach this decision.
func Classify(err error) FailureKind {
	if errors.Is(err, metadata.ErrCorruptImage) {
		return FailurePermanent
	}
	if errors.Is(err, store.ErrPhotoNotFound) {
		return FailurePermanent
	}

	var svcErr *facematch.ServiceError
	if errors.As(err, &svcErr) {
		if svcErr.StatusCode >= 400 && svcErr.StatusCode < 500 {
			return FailurePermanent
		}
		return FailureTransient
	}

	if errors.Is(err, reference.ErrSnapshotUnavailable) {
		return FailureTransient
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}
	return FailureTransient
}
