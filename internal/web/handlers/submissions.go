package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/constants"
	"github.com/clubgallery/photoflow/internal/observability"
	"github.com/clubgallery/photoflow/internal/pipeline"
	"github.com/clubgallery/photoflow/internal/store"
)

// SubmissionsHandler accepts member photo uploads.
type SubmissionsHandler struct {
	logger    *zap.Logger
	photos    PhotoStore
	originals OriginalStore
	queue     Enqueuer
}

func NewSubmissionsHandler(logger *zap.Logger, photos PhotoStore, originals OriginalStore, queue Enqueuer) *SubmissionsHandler {
	return &SubmissionsHandler{
		logger:    logger,
		photos:    photos,
		originals: originals,
		queue:     queue,
	}
}

// Submit handles one multipart photo upload. A bit-identical resubmission
// is answered with the existing photo instead of a new record.
func (h *SubmissionsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	submitterID, err := parseFormInt64(r, "submitter_member_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid submitter_member_id")
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize+1))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}
	if len(data) > constants.MaxUploadSize {
		respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	ext := imageExtension(data)
	if ext == "" {
		respondError(w, http.StatusUnsupportedMediaType, "only JPEG and PNG uploads are accepted")
		return
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	ctx := r.Context()
	if existingID, err := h.photos.PhotoByContentHash(ctx, contentHash); err != nil {
		respondError(w, http.StatusInternalServerError, "duplicate lookup failed")
		return
	} else if existingID != "" {
		respondJSON(w, http.StatusOK, map[string]any{
			"photo_id":  existingID,
			"duplicate": true,
		})
		return
	}

	path, err := h.originals.StoreOriginal(contentHash, data, ext)
	if err != nil {
		h.logger.Error("storing original failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store photo")
		return
	}

	photo := &store.Photo{
		ID:                uuid.NewString(),
		ContentHash:       contentHash,
		OriginalPath:      path,
		OriginalFilename:  filepath.Base(header.Filename),
		SubmitterMemberID: submitterID,
		Status:            string(pipeline.StatusUploaded),
	}
	if err := h.photos.Create(ctx, photo); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record photo")
		return
	}

	if err := h.photos.SetStatus(ctx, photo.ID, string(pipeline.StatusQueued)); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to queue photo")
		return
	}
	if err := h.queue.Enqueue(ctx, photo.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to queue photo")
		return
	}

	observability.PhotosSubmitted.Inc()
	h.logger.Info("photo submitted",
		zap.String("photo_id", photo.ID),
		zap.String("filename", photo.OriginalFilename),
		zap.Int("bytes", len(data)))

	respondJSON(w, http.StatusAccepted, map[string]any{
		"photo_id":  photo.ID,
		"duplicate": false,
	})
}

// imageExtension sniffs the upload's magic bytes; the client-supplied
// filename and Content-Type are not trusted.
func imageExtension(data []byte) string {
	switch {
	case len(data) > 2 && bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return ".jpg"
	case len(data) > 8 && bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return ".png"
	default:
		return ""
	}
}

func parseFormInt64(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
