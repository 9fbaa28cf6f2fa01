package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/clubgallery/photoflow/internal/facematch"
)

// MembersHandler lists members for the face confirmation picker.
type MembersHandler struct {
	snapshots SnapshotSource
}

func NewMembersHandler(snapshots SnapshotSource) *MembersHandler {
	return &MembersHandler{snapshots: snapshots}
}

type memberResponse struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// List returns members from the active snapshot, optionally filtered by
// a diacritic-insensitive substring query.
func (h *MembersHandler) List(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Current()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "reference snapshot unavailable")
		return
	}

	query := facematch.NormalizePersonName(r.URL.Query().Get("query"))

	out := make([]memberResponse, 0)
	for _, m := range snap.Members() {
		if query != "" && !strings.Contains(facematch.NormalizePersonName(m.DisplayName), query) {
			continue
		}
		out = append(out, memberResponse{ID: m.ID, DisplayName: m.DisplayName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })

	respondJSON(w, http.StatusOK, map[string]any{"members": out})
}
