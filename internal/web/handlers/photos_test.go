package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clubgallery/photoflow/internal/reference"
	"github.com/clubgallery/photoflow/internal/store"
)

func photosSetup() (*PhotosHandler, *fakePhotoStore, *fakeFaceStore, *fakeTagStore) {
	photos := newFakePhotoStore()
	faces := &fakeFaceStore{}
	tags := &fakeTagStore{}
	snaps := snapshotWith(
		[]reference.Member{{ID: 5, DisplayName: "Jana Nováková"}},
		[]reference.Event{testEvent(7, "Summer Regatta")},
	)
	h := NewPhotosHandler(testLogger, photos, faces, tags, snaps)
	return h, photos, faces, tags
}

func TestGetPhotoDetail(t *testing.T) {
	h, photos, faces, tags := photosSetup()

	seven := int64(7)
	five := int64(5)
	dist := 0.31
	captured := time.Date(2026, 6, 13, 10, 30, 0, 0, time.UTC)
	photos.photos["p1"] = &store.Photo{
		ID:         "p1",
		Status:     "pending_review",
		EventID:    &seven,
		CapturedAt: &captured,
	}
	photos.derivs["p1"] = []store.DerivativeRecord{
		{Tier: "thumb", Path: "/tmp/t.jpg", Width: 300, Height: 200},
	}
	faces.faces = []store.StoredFace{
		{ID: 11, FaceIndex: 0, MatchBand: "auto", MatchedMemberID: &five, MatchDistance: &dist},
	}
	tags.tags = []store.PhotoTag{{Tag: "SummerRegatta", TagType: "event", AutoGenerated: true}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = requestWithChiParams(req, map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)

	photo := body["photo"].(map[string]any)
	if photo["event_title"] != "Summer Regatta" {
		t.Errorf("event_title = %v; want Summer Regatta", photo["event_title"])
	}

	faceList := body["faces"].([]any)
	if len(faceList) != 1 {
		t.Fatalf("faces = %d; want 1", len(faceList))
	}
	face := faceList[0].(map[string]any)
	if face["matched_member_name"] != "Jana Nováková" {
		t.Errorf("matched_member_name = %v", face["matched_member_name"])
	}

	derivs := body["derivatives"].(map[string]any)
	if derivs["thumb"] != "/api/v1/photos/p1/file/thumb" {
		t.Errorf("thumb url = %v", derivs["thumb"])
	}
}

// An ambiguous photo carries its tied event candidates so the reviewer
// can pick one through event assignment.
func TestGetPhotoSurfacesEventCandidates(t *testing.T) {
	h, photos, _, _ := photosSetup()

	photos.photos["p1"] = &store.Photo{
		ID:                "p1",
		Status:            "ambiguous",
		CandidateEventIDs: []int64{7, 99},
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = requestWithChiParams(req, map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	photo := body["photo"].(map[string]any)

	candidates, ok := photo["candidate_events"].([]any)
	if !ok || len(candidates) != 2 {
		t.Fatalf("candidate_events = %v; want 2 entries", photo["candidate_events"])
	}
	first := candidates[0].(map[string]any)
	if first["id"] != float64(7) || first["name"] != "Summer Regatta" {
		t.Errorf("first candidate = %v; want id 7 Summer Regatta", first)
	}
	// An event missing from the snapshot still surfaces by id.
	second := candidates[1].(map[string]any)
	if second["id"] != float64(99) {
		t.Errorf("second candidate = %v; want id 99", second)
	}
}

func TestGetPhotoNotFound(t *testing.T) {
	h, _, _, _ := photosSetup()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = requestWithChiParams(req, map[string]string{"id": "missing"})
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404", rec.Code)
	}
}

func TestListRejectsBadLimit(t *testing.T) {
	h, _, _, _ := photosSetup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos?limit=9999", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestAddManualTag(t *testing.T) {
	tags := &fakeTagStore{}
	h := NewTagsHandler(testLogger, tags)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tag": "летний лагерь boat trip", "tag_type": "activity"}`))
	req = requestWithChiParams(req, map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	h.Add(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; want 201 (body %s)", rec.Code, rec.Body.String())
	}
	if len(tags.added) != 1 {
		t.Fatalf("added = %d tags; want 1", len(tags.added))
	}
	if tags.added[0].Tag != "BoatTrip" {
		t.Errorf("tag = %q; want BoatTrip", tags.added[0].Tag)
	}
}

func TestAddManualTagRejectsEmpty(t *testing.T) {
	h := NewTagsHandler(testLogger, &fakeTagStore{})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tag": "***", "tag_type": "activity"}`))
	req = requestWithChiParams(req, map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	h.Add(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestAddManualTagRejectsUnknownType(t *testing.T) {
	h := NewTagsHandler(testLogger, &fakeTagStore{})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tag": "Sunset", "tag_type": "mood"}`))
	req = requestWithChiParams(req, map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	h.Add(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}
