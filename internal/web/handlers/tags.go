package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/store"
	"github.com/clubgallery/photoflow/internal/tags"
)

// TagsHandler covers manual tag additions.
type TagsHandler struct {
	logger *zap.Logger
	tags   TagStore
}

func NewTagsHandler(logger *zap.Logger, tagStore TagStore) *TagsHandler {
	return &TagsHandler{logger: logger, tags: tagStore}
}

// Add attaches a manual tag to a photo. The value goes through the same
// sanitizer as generated tags so manual and automatic tags collate.
func (h *TagsHandler) Add(w http.ResponseWriter, r *http.Request) {
	photoID := chi.URLParam(r, "id")

	var body struct {
		Tag     string `json:"tag"`
		TagType string `json:"tag_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	value := tags.Sanitize(body.Tag)
	if value == "" {
		respondError(w, http.StatusBadRequest, "tag is empty after sanitization")
		return
	}
	tagType := body.TagType
	if tagType == "" {
		tagType = string(tags.TypeActivity)
	}
	if !tags.ValidType(tagType) {
		respondError(w, http.StatusBadRequest, "unknown tag_type")
		return
	}

	if err := h.tags.Add(r.Context(), photoID, store.PhotoTag{Tag: value, TagType: tagType}); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to add tag")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"photo_id": photoID,
		"tag":      value,
		"tag_type": tagType,
	})
}
