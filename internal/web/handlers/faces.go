package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/store"
)

// FacesHandler covers reviewer actions on detected faces.
type FacesHandler struct {
	logger    *zap.Logger
	faces     FaceStore
	snapshots SnapshotSource
	refresher TagRefresher
}

func NewFacesHandler(logger *zap.Logger, faces FaceStore, snapshots SnapshotSource, refresher TagRefresher) *FacesHandler {
	return &FacesHandler{
		logger:    logger,
		faces:     faces,
		snapshots: snapshots,
		refresher: refresher,
	}
}

func faceID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "faceId"), 10, 64)
}

// Confirm pins a face to a member. The confirmation is final and adds
// the face's embedding to the member's exemplars.
func (h *FacesHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := faceID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid face id")
		return
	}

	var body struct {
		MemberID int64 `json:"member_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MemberID == 0 {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	snap, err := h.snapshots.Current()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "reference snapshot unavailable")
		return
	}
	if _, ok := snap.Member(body.MemberID); !ok {
		respondError(w, http.StatusBadRequest, "unknown member")
		return
	}

	ctx := r.Context()
	err = h.faces.Confirm(ctx, id, body.MemberID)
	switch {
	case errors.Is(err, store.ErrFaceNotFound):
		respondError(w, http.StatusNotFound, "face not found")
		return
	case errors.Is(err, store.ErrFaceAlreadyConfirmed):
		respondError(w, http.StatusConflict, "face already confirmed")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to confirm face")
		return
	}

	photoID := chi.URLParam(r, "id")
	if err := h.refresher.RefreshTags(ctx, photoID); err != nil {
		h.logger.Warn("tag refresh after face confirmation failed",
			zap.String("photo_id", photoID), zap.Error(err))
	}

	h.logger.Info("face confirmed",
		zap.Int64("face_id", id),
		zap.Int64("member_id", body.MemberID))
	respondJSON(w, http.StatusOK, map[string]any{
		"face_id":   id,
		"member_id": body.MemberID,
	})
}

// MarkGuest flags an unconfirmed face as a non-member so it stops
// surfacing suggestions.
func (h *FacesHandler) MarkGuest(w http.ResponseWriter, r *http.Request) {
	id, err := faceID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid face id")
		return
	}

	ctx := r.Context()
	err = h.faces.MarkGuest(ctx, id)
	switch {
	case errors.Is(err, store.ErrFaceNotFound):
		respondError(w, http.StatusNotFound, "face not found")
		return
	case errors.Is(err, store.ErrFaceAlreadyConfirmed):
		respondError(w, http.StatusConflict, "face already confirmed")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to mark guest")
		return
	}

	photoID := chi.URLParam(r, "id")
	if err := h.refresher.RefreshTags(ctx, photoID); err != nil {
		h.logger.Warn("tag refresh after guest marking failed",
			zap.String("photo_id", photoID), zap.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"face_id": id,
		"guest":   true,
	})
}
