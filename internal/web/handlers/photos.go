package handlers

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/constants"
	"github.com/clubgallery/photoflow/internal/pipeline"
	"github.com/clubgallery/photoflow/internal/store"
)

// PhotosHandler serves the photo listing and detail endpoints.
type PhotosHandler struct {
	logger    *zap.Logger
	photos    PhotoStore
	faces     FaceStore
	tags      TagStore
	snapshots SnapshotSource
}

func NewPhotosHandler(logger *zap.Logger, photos PhotoStore, faces FaceStore, tags TagStore, snapshots SnapshotSource) *PhotosHandler {
	return &PhotosHandler{
		logger:    logger,
		photos:    photos,
		faces:     faces,
		tags:      tags,
		snapshots: snapshots,
	}
}

// photoResponse is the wire shape of one photo.
type photoResponse struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Filename      string     `json:"filename"`
	CapturedAt    *time.Time `json:"captured_at,omitempty"`
	EventID       *int64     `json:"event_id,omitempty"`
	EventTitle    string     `json:"event_title,omitempty"`
	// CandidateEvents lists the tied candidates of an ambiguous match,
	// in rank order, for the reviewer's event picker.
	CandidateEvents []candidateEvent `json:"candidate_events,omitempty"`
	Caption       *string    `json:"caption,omitempty"`
	NearDuplicate bool       `json:"near_duplicate,omitempty"`
	DuplicateOf   *string    `json:"duplicate_of,omitempty"`
	Width         int        `json:"width,omitempty"`
	Height        int        `json:"height,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type candidateEvent struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

type faceResponse struct {
	ID                int64     `json:"id"`
	FaceIndex         int       `json:"face_index"`
	BBox              []float64 `json:"bbox"`
	MatchBand         string    `json:"match_band"`
	MatchedMemberID   *int64    `json:"matched_member_id,omitempty"`
	MatchedMemberName string    `json:"matched_member_name,omitempty"`
	MatchDistance     *float64  `json:"match_distance,omitempty"`
	ConfirmedMemberID *int64    `json:"confirmed_member_id,omitempty"`
	IsGuest           bool      `json:"is_guest,omitempty"`
}

type tagResponse struct {
	Tag           string `json:"tag"`
	TagType       string `json:"tag_type"`
	AutoGenerated bool   `json:"auto_generated"`
}

func (h *PhotosHandler) toResponse(p *store.Photo) photoResponse {
	resp := photoResponse{
		ID:            p.ID,
		Status:        p.Status,
		Filename:      p.OriginalFilename,
		CapturedAt:    p.CapturedAt,
		EventID:       p.EventID,
		Caption:       p.Caption,
		NearDuplicate: p.NearDuplicate,
		DuplicateOf:   p.DuplicateOf,
		Width:         p.Width,
		Height:        p.Height,
		CreatedAt:     p.CreatedAt,
	}
	if p.EventID != nil || len(p.CandidateEventIDs) > 0 {
		snap, err := h.snapshots.Current()
		if err != nil {
			return resp
		}
		if p.EventID != nil {
			if ev, ok := snap.Event(*p.EventID); ok {
				resp.EventTitle = ev.Name
			}
		}
		for _, id := range p.CandidateEventIDs {
			ce := candidateEvent{ID: id}
			if ev, ok := snap.Event(id); ok {
				ce.Name = ev.Name
			}
			resp.CandidateEvents = append(resp.CandidateEvents, ce)
		}
	}
	return resp
}

// List returns photos filtered by status, event, member, tag and year.
// Without an explicit status filter only approved photos are returned,
// this is the public gallery view.
func (h *PhotosHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := q.Get("status")
	if status == "" {
		status = string(pipeline.StatusApproved)
	}

	eventID, err := queryInt64(r, "event_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid event_id")
		return
	}
	memberID, err := queryInt64(r, "member_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid member_id")
		return
	}
	year, err := queryInt(r, "year", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid year")
		return
	}
	limit, err := queryInt(r, "limit", constants.DefaultHandlerPageSize)
	if err != nil || limit < 1 || limit > constants.MaxHandlerPageSize {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	photos, err := h.photos.List(r.Context(), store.PhotoFilter{
		Status:   status,
		EventID:  eventID,
		MemberID: memberID,
		Tag:      q.Get("tag"),
		Year:     year,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.logger.Error("photo listing failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list photos")
		return
	}

	out := make([]photoResponse, 0, len(photos))
	for i := range photos {
		out = append(out, h.toResponse(&photos[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"photos": out,
		"count":  len(out),
	})
}

// Get returns one photo with its faces, tags and derivative tiers.
func (h *PhotosHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	photo, err := h.photos.GetByID(ctx, id)
	if errors.Is(err, store.ErrPhotoNotFound) {
		respondError(w, http.StatusNotFound, "photo not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load photo")
		return
	}

	faces, err := h.faces.FacesByPhoto(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load faces")
		return
	}
	tags, err := h.tags.TagsByPhoto(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load tags")
		return
	}
	derivs, err := h.photos.Derivatives(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load derivatives")
		return
	}

	snap, snapErr := h.snapshots.Current()

	faceOut := make([]faceResponse, 0, len(faces))
	for _, f := range faces {
		fr := faceResponse{
			ID:                f.ID,
			FaceIndex:         f.FaceIndex,
			BBox:              f.BBox,
			MatchBand:         f.MatchBand,
			MatchedMemberID:   f.MatchedMemberID,
			MatchDistance:     f.MatchDistance,
			ConfirmedMemberID: f.ConfirmedMemberID,
			IsGuest:           f.IsGuest,
		}
		if snapErr == nil && f.MatchedMemberID != nil {
			if m, ok := snap.Member(*f.MatchedMemberID); ok {
				fr.MatchedMemberName = m.DisplayName
			}
		}
		faceOut = append(faceOut, fr)
	}

	tagOut := make([]tagResponse, 0, len(tags))
	for _, t := range tags {
		tagOut = append(tagOut, tagResponse{Tag: t.Tag, TagType: t.TagType, AutoGenerated: t.AutoGenerated})
	}

	tiers := make(map[string]string, len(derivs))
	for _, d := range derivs {
		tiers[d.Tier] = "/api/v1/photos/" + id + "/file/" + d.Tier
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"photo":       h.toResponse(photo),
		"faces":       faceOut,
		"tags":        tagOut,
		"derivatives": tiers,
	})
}

// File streams one derivative tier from disk.
func (h *PhotosHandler) File(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tier := chi.URLParam(r, "tier")

	derivs, err := h.photos.Derivatives(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load derivatives")
		return
	}
	for _, d := range derivs {
		if d.Tier == tier {
			if _, err := os.Stat(d.Path); err != nil {
				respondError(w, http.StatusNotFound, "derivative file missing")
				return
			}
			http.ServeFile(w, r, d.Path)
			return
		}
	}
	respondError(w, http.StatusNotFound, "unknown derivative tier")
}
