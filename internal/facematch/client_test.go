package facematch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDetectParsesFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embed/face" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"faces_count": 2,
			"faces": [
				{"face_index": 0, "dim": 4, "embedding": [0.1, 0.2, 0.3, 0.4], "bbox": [10, 20, 110, 140], "det_score": 0.97},
				{"face_index": 1, "dim": 4, "embedding": [0.5, 0.6, 0.7, 0.8], "bbox": [200, 30, 290, 130], "det_score": 0.88}
			],
			"model": "test"
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, 4)
	faces, err := client.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("faces = %d; want 2", len(faces))
	}
	if faces[0].BBox[2] != 110 || faces[0].DetScore != 0.97 {
		t.Errorf("first face = %+v", faces[0])
	}
}

// A face service running the wrong model must be rejected up front, not
// discovered later as unusable vectors in the database.
func TestDetectRejectsEmbeddingDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"faces_count": 1,
			"faces": [{"face_index": 0, "dim": 3, "embedding": [0.1, 0.2, 0.3], "bbox": [0, 0, 10, 10], "det_score": 0.9}]
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, 4)
	if _, err := client.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0}); err == nil {
		t.Fatal("expected error for mismatched embedding dimension")
	} else if !strings.Contains(err.Error(), "dimension") {
		t.Errorf("error = %v; want dimension mismatch", err)
	}
}

func TestDetectServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, 4)
	_, err := client.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0})

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error = %v; want ServiceError", err)
	}
	if svcErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want 503", svcErr.StatusCode)
	}
}
