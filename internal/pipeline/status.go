// Package pipeline orchestrates photo processing: metadata extraction,
// duplicate detection, event matching, face matching, derivatives, tag
// synthesis and the review lifecycle.
package pipeline

import "fmt"

// Status is the review lifecycle of a photo. Queue state (attempts,
// leases) lives separately in the processing queue.
type Status string

const (
	// StatusUploaded: bytes accepted and stored, not yet queued.
	StatusUploaded Status = "uploaded"
	// StatusQueued: waiting for a worker.
	StatusQueued Status = "queued"
	// StatusProcessing: a worker holds the lease.
	StatusProcessing Status = "processing"
	// StatusPendingReview: processed with an event assigned, waiting
	// for a reviewer.
	StatusPendingReview Status = "pending_review"
	// StatusUnmatched: processed but no event candidate fit.
	StatusUnmatched Status = "unmatched"
	// StatusAmbiguous: processed, several event candidates tied.
	StatusAmbiguous Status = "ambiguous"
	// StatusNeedsManualReview: processing failed permanently, an
	// operator has to look at it.
	StatusNeedsManualReview Status = "needs_manual_review"
	// StatusDuplicate: bit-identical to an existing photo.
	StatusDuplicate Status = "duplicate"
	// StatusApproved: published to the gallery. Final.
	StatusApproved Status = "approved"
	// StatusRejected: withheld by a reviewer. Final.
	StatusRejected Status = "rejected"
)

// transitions is the full set of legal status changes. Anything not
// listed is rejected; in particular nothing leads out of a final state.
var transitions = map[Status][]Status{
	StatusUploaded:   {StatusQueued},
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusPendingReview, StatusUnmatched, StatusAmbiguous, StatusNeedsManualReview, StatusDuplicate, StatusQueued},
	StatusPendingReview:     {StatusApproved, StatusRejected, StatusQueued},
	StatusUnmatched:         {StatusPendingReview, StatusQueued, StatusRejected},
	StatusAmbiguous:         {StatusPendingReview, StatusQueued, StatusRejected},
	StatusNeedsManualReview: {StatusQueued, StatusRejected},
	StatusDuplicate:         {},
	StatusApproved:          {},
	StatusRejected:          {},
}

// Final reports whether no further transition can leave this status.
func (s Status) Final() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is a legal change.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// CanForceReprocess reports whether an explicit operator force can push
// this status back to queued. Forcing is the only way out of a final
// status and discards the earlier decision, so it never happens
// implicitly.
func (s Status) CanForceReprocess() bool {
	return s.Final() || s.CanTransitionTo(StatusQueued)
}

// Reviewable reports whether a reviewer decision (approve/reject) is
// accepted in this status.
func (s Status) Reviewable() bool {
	return s.CanTransitionTo(StatusApproved) || s.CanTransitionTo(StatusRejected)
}

// ErrIllegalTransition wraps a rejected status change.
type ErrIllegalTransition struct {
	From Status
	To   Status
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}
