package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/pipeline"
	"github.com/clubgallery/photoflow/internal/store"
)

// ReviewHandler covers the reviewer workflow: event assignment,
// approval, rejection and forced reprocessing.
type ReviewHandler struct {
	logger    *zap.Logger
	photos    PhotoStore
	queue     Enqueuer
	snapshots SnapshotSource
	refresher TagRefresher
}

func NewReviewHandler(logger *zap.Logger, photos PhotoStore, queue Enqueuer, snapshots SnapshotSource, refresher TagRefresher) *ReviewHandler {
	return &ReviewHandler{
		logger:    logger,
		photos:    photos,
		queue:     queue,
		snapshots: snapshots,
		refresher: refresher,
	}
}

// loadPhoto fetches the photo or writes the error response.
func (h *ReviewHandler) loadPhoto(w http.ResponseWriter, r *http.Request) *store.Photo {
	id := chi.URLParam(r, "id")
	photo, err := h.photos.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrPhotoNotFound) {
		respondError(w, http.StatusNotFound, "photo not found")
		return nil
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load photo")
		return nil
	}
	return photo
}

// decide moves a photo to a reviewer decision status.
func (h *ReviewHandler) decide(w http.ResponseWriter, r *http.Request, next pipeline.Status) {
	photo := h.loadPhoto(w, r)
	if photo == nil {
		return
	}

	current := pipeline.Status(photo.Status)
	if !current.CanTransitionTo(next) {
		respondError(w, http.StatusConflict,
			(&pipeline.ErrIllegalTransition{From: current, To: next}).Error())
		return
	}
	if err := h.photos.SetStatus(r.Context(), photo.ID, string(next)); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	h.logger.Info("review decision",
		zap.String("photo_id", photo.ID),
		zap.String("from", string(current)),
		zap.String("to", string(next)))
	respondJSON(w, http.StatusOK, map[string]string{
		"photo_id": photo.ID,
		"status":   string(next),
	})
}

// Approve publishes a photo to the gallery.
func (h *ReviewHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, pipeline.StatusApproved)
}

// Reject withholds a photo.
func (h *ReviewHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, pipeline.StatusRejected)
}

// AssignEvent sets or clears the photo's event manually and moves an
// unmatched or ambiguous photo on to pending review.
func (h *ReviewHandler) AssignEvent(w http.ResponseWriter, r *http.Request) {
	photo := h.loadPhoto(w, r)
	if photo == nil {
		return
	}

	var body struct {
		EventID *int64 `json:"event_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	ctx := r.Context()
	if body.EventID != nil {
		snap, err := h.snapshots.Current()
		if err != nil {
			respondError(w, http.StatusServiceUnavailable, "reference snapshot unavailable")
			return
		}
		if _, ok := snap.Event(*body.EventID); !ok {
			respondError(w, http.StatusBadRequest, "unknown event")
			return
		}
	}

	// A manual decision settles the match either way, so stored
	// candidates are cleared.
	if err := h.photos.AssignEvent(ctx, photo.ID, body.EventID, nil); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to assign event")
		return
	}

	// A manual assignment resolves the unmatched/ambiguous outcome.
	current := pipeline.Status(photo.Status)
	status := photo.Status
	if body.EventID != nil && current.CanTransitionTo(pipeline.StatusPendingReview) &&
		(current == pipeline.StatusUnmatched || current == pipeline.StatusAmbiguous) {
		if err := h.photos.SetStatus(ctx, photo.ID, string(pipeline.StatusPendingReview)); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to update status")
			return
		}
		status = string(pipeline.StatusPendingReview)
	}

	if err := h.refresher.RefreshTags(ctx, photo.ID); err != nil {
		h.logger.Warn("tag refresh after event assignment failed",
			zap.String("photo_id", photo.ID), zap.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"photo_id": photo.ID,
		"event_id": body.EventID,
		"status":   status,
	})
}

// Reprocess sends a photo back through the pipeline. Approved, rejected
// and duplicate photos are final; pushing one back anyway requires the
// explicit ?force=true operator flag and discards the earlier decision.
func (h *ReviewHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	photo := h.loadPhoto(w, r)
	if photo == nil {
		return
	}

	force := r.URL.Query().Get("force") == "true"
	current := pipeline.Status(photo.Status)
	allowed := current.CanTransitionTo(pipeline.StatusQueued)
	if !allowed && force {
		allowed = current.CanForceReprocess()
	}
	if !allowed {
		respondError(w, http.StatusConflict,
			(&pipeline.ErrIllegalTransition{From: current, To: pipeline.StatusQueued}).Error())
		return
	}

	ctx := r.Context()
	if err := h.photos.SetStatus(ctx, photo.ID, string(pipeline.StatusQueued)); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	if err := h.queue.Enqueue(ctx, photo.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to queue photo")
		return
	}

	h.logger.Info("photo requeued for processing",
		zap.String("photo_id", photo.ID),
		zap.String("from", string(current)),
		zap.Bool("forced", force))
	respondJSON(w, http.StatusAccepted, map[string]string{
		"photo_id": photo.ID,
		"status":   string(pipeline.StatusQueued),
	})
}

// QueueStats reports the processing queue depth per state.
func (h *ReviewHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"queued": stats.Queued,
		"leased": stats.Leased,
		"done":   stats.Done,
		"failed": stats.Failed,
	})
}

// RetryFailed requeues all permanently failed queue entries.
func (h *ReviewHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.RetryFailed(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retry queue entries")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"retried": n})
}

// Events lists the events from the active snapshot for the manual
// assignment picker.
func (h *ReviewHandler) Events(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Current()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "reference snapshot unavailable")
		return
	}

	type eventResponse struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Starts string `json:"starts"`
		Ends   string `json:"ends"`
	}
	events := snap.Events()
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse{
			ID:     ev.ID,
			Name:   ev.Name,
			Starts: ev.Starts.Format("2006-01-02T15:04:05Z07:00"),
			Ends:   ev.Ends.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": out})
}
