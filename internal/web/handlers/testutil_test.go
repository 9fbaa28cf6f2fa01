package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/queue"
	"github.com/clubgallery/photoflow/internal/reference"
	"github.com/clubgallery/photoflow/internal/store"
)

// testSnapshots wraps a prebuilt snapshot as a SnapshotSource.
type testSnapshots struct {
	snap *reference.Snapshot
	err  error
}

func (s *testSnapshots) Current() (*reference.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func snapshotWith(members []reference.Member, events []reference.Event) *testSnapshots {
	return &testSnapshots{snap: reference.Build(1, members, events, nil, nil, 5)}
}

// fakePhotoStore keeps photos in memory.
type fakePhotoStore struct {
	photos map[string]*store.Photo
	byHash map[string]string
	derivs map[string][]store.DerivativeRecord
	listed []store.Photo
}

func newFakePhotoStore() *fakePhotoStore {
	return &fakePhotoStore{
		photos: make(map[string]*store.Photo),
		byHash: make(map[string]string),
		derivs: make(map[string][]store.DerivativeRecord),
	}
}

func (f *fakePhotoStore) Create(_ context.Context, p *store.Photo) error {
	cp := *p
	f.photos[p.ID] = &cp
	f.byHash[p.ContentHash] = p.ID
	return nil
}

func (f *fakePhotoStore) GetByID(_ context.Context, id string) (*store.Photo, error) {
	p, ok := f.photos[id]
	if !ok {
		return nil, store.ErrPhotoNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePhotoStore) List(_ context.Context, _ store.PhotoFilter) ([]store.Photo, error) {
	return f.listed, nil
}

func (f *fakePhotoStore) SetStatus(_ context.Context, id, status string) error {
	p, ok := f.photos[id]
	if !ok {
		return store.ErrPhotoNotFound
	}
	p.Status = status
	return nil
}

func (f *fakePhotoStore) AssignEvent(_ context.Context, id string, eventID *int64, candidateIDs []int64) error {
	p, ok := f.photos[id]
	if !ok {
		return store.ErrPhotoNotFound
	}
	p.EventID = eventID
	p.CandidateEventIDs = candidateIDs
	return nil
}

func (f *fakePhotoStore) Derivatives(_ context.Context, photoID string) ([]store.DerivativeRecord, error) {
	return f.derivs[photoID], nil
}

func (f *fakePhotoStore) PhotoByContentHash(_ context.Context, contentHash string) (string, error) {
	return f.byHash[contentHash], nil
}

// fakeQueue records enqueued photo ids.
type fakeQueue struct {
	enqueued []string
	stats    queue.Stats
}

func (f *fakeQueue) Enqueue(_ context.Context, photoID string) error {
	f.enqueued = append(f.enqueued, photoID)
	return nil
}

func (f *fakeQueue) Stats(_ context.Context) (*queue.Stats, error) {
	s := f.stats
	return &s, nil
}

func (f *fakeQueue) RetryFailed(_ context.Context) (int, error) {
	return f.stats.Failed, nil
}

// fakeOriginals pretends to write bytes to disk.
type fakeOriginals struct {
	stored map[string]int
}

func (f *fakeOriginals) StoreOriginal(contentHash string, data []byte, ext string) (string, error) {
	if f.stored == nil {
		f.stored = make(map[string]int)
	}
	f.stored[contentHash] = len(data)
	return "/tmp/originals/" + contentHash + ext, nil
}

// fakeFaceStore scripts reviewer face actions.
type fakeFaceStore struct {
	faces      []store.StoredFace
	confirmErr error
	confirmed  map[int64]int64
	guests     []int64
}

func (f *fakeFaceStore) FacesByPhoto(_ context.Context, _ string) ([]store.StoredFace, error) {
	return f.faces, nil
}

func (f *fakeFaceStore) Confirm(_ context.Context, faceID, memberID int64) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	if f.confirmed == nil {
		f.confirmed = make(map[int64]int64)
	}
	f.confirmed[faceID] = memberID
	return nil
}

func (f *fakeFaceStore) MarkGuest(_ context.Context, faceID int64) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.guests = append(f.guests, faceID)
	return nil
}

// fakeTagStore records added tags.
type fakeTagStore struct {
	tags  []store.PhotoTag
	added []store.PhotoTag
}

func (f *fakeTagStore) TagsByPhoto(_ context.Context, _ string) ([]store.PhotoTag, error) {
	return f.tags, nil
}

func (f *fakeTagStore) Add(_ context.Context, _ string, tag store.PhotoTag) error {
	f.added = append(f.added, tag)
	return nil
}

// fakeRefresher records tag refresh requests.
type fakeRefresher struct {
	refreshed []string
}

func (f *fakeRefresher) RefreshTags(_ context.Context, photoID string) error {
	f.refreshed = append(f.refreshed, photoID)
	return nil
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func testEvent(id int64, name string) reference.Event {
	start := time.Date(2026, 6, 13, 9, 0, 0, 0, time.UTC)
	return reference.Event{
		ID:     id,
		Name:   name,
		Starts: start,
		Ends:   start.Add(3 * time.Hour),
	}
}

var testLogger = zap.NewNop()
