package handlers

import (
	"bytes"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

func multipartUpload(t *testing.T, field, filename string, data []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func testJPEGBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSubmitAcceptsJPEG(t *testing.T) {
	photos := newFakePhotoStore()
	originals := &fakeOriginals{}
	q := &fakeQueue{}
	h := NewSubmissionsHandler(testLogger, photos, originals, q)

	body, contentType := multipartUpload(t, "photo", "IMG_1234.jpg", testJPEGBytes(t),
		map[string]string{"submitter_member_id": "42"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d; want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	if resp["duplicate"] != false {
		t.Errorf("duplicate = %v; want false", resp["duplicate"])
	}
	photoID, _ := resp["photo_id"].(string)
	if photoID == "" {
		t.Fatal("response has no photo_id")
	}

	stored := photos.photos[photoID]
	if stored == nil {
		t.Fatal("photo was not persisted")
	}
	if stored.Status != "queued" {
		t.Errorf("status = %q; want queued", stored.Status)
	}
	if stored.SubmitterMemberID == nil || *stored.SubmitterMemberID != 42 {
		t.Errorf("submitter = %v; want 42", stored.SubmitterMemberID)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != photoID {
		t.Errorf("enqueued = %v; want [%s]", q.enqueued, photoID)
	}
	if len(originals.stored) != 1 {
		t.Errorf("originals stored = %d; want 1", len(originals.stored))
	}
}

func TestSubmitResubmissionReturnsExisting(t *testing.T) {
	photos := newFakePhotoStore()
	q := &fakeQueue{}
	h := NewSubmissionsHandler(testLogger, photos, &fakeOriginals{}, q)

	data := testJPEGBytes(t)
	submit := func() *httptest.ResponseRecorder {
		body, contentType := multipartUpload(t, "photo", "a.jpg", data, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		h.Submit(rec, req)
		return rec
	}

	first := submit()
	if first.Code != http.StatusAccepted {
		t.Fatalf("first submission status = %d", first.Code)
	}
	firstID := decodeBody(t, first)["photo_id"]

	second := submit()
	if second.Code != http.StatusOK {
		t.Fatalf("resubmission status = %d; want %d", second.Code, http.StatusOK)
	}
	resp := decodeBody(t, second)
	if resp["duplicate"] != true {
		t.Errorf("duplicate = %v; want true", resp["duplicate"])
	}
	if resp["photo_id"] != firstID {
		t.Errorf("photo_id = %v; want %v", resp["photo_id"], firstID)
	}
	if len(q.enqueued) != 1 {
		t.Errorf("enqueued %d times; want 1", len(q.enqueued))
	}
}

func TestSubmitRejectsNonImage(t *testing.T) {
	h := NewSubmissionsHandler(testLogger, newFakePhotoStore(), &fakeOriginals{}, &fakeQueue{})

	body, contentType := multipartUpload(t, "photo", "notes.txt", []byte("not an image at all"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusUnsupportedMediaType)
	}
}

func TestSubmitRequiresFile(t *testing.T) {
	h := NewSubmissionsHandler(testLogger, newFakePhotoStore(), &fakeOriginals{}, &fakeQueue{})

	body, contentType := multipartUpload(t, "attachment", "a.jpg", testJPEGBytes(t), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestImageExtension(t *testing.T) {
	if got := imageExtension(testJPEGBytes(t)); got != ".jpg" {
		t.Errorf("jpeg extension = %q; want .jpg", got)
	}
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	if got := imageExtension(png); got != ".png" {
		t.Errorf("png extension = %q; want .png", got)
	}
	if got := imageExtension([]byte("GIF89a")); got != "" {
		t.Errorf("gif extension = %q; want empty", got)
	}
}
