package handlers

import (
	"context"

	"github.com/clubgallery/photoflow/internal/queue"
	"github.com/clubgallery/photoflow/internal/reference"
	"github.com/clubgallery/photoflow/internal/store"
)

// PhotoStore is the photo persistence surface the handlers use. The
// concrete implementation is store.PhotoRepository; handler tests plug
// in fakes.
type PhotoStore interface {
	Create(ctx context.Context, p *store.Photo) error
	GetByID(ctx context.Context, id string) (*store.Photo, error)
	List(ctx context.Context, f store.PhotoFilter) ([]store.Photo, error)
	SetStatus(ctx context.Context, id, status string) error
	AssignEvent(ctx context.Context, id string, eventID *int64, candidateIDs []int64) error
	Derivatives(ctx context.Context, photoID string) ([]store.DerivativeRecord, error)
	PhotoByContentHash(ctx context.Context, contentHash string) (string, error)
}

// FaceStore covers reviewer actions on detected faces.
type FaceStore interface {
	FacesByPhoto(ctx context.Context, photoID string) ([]store.StoredFace, error)
	Confirm(ctx context.Context, faceID, memberID int64) error
	MarkGuest(ctx context.Context, faceID int64) error
}

// TagStore covers tag listing and manual additions.
type TagStore interface {
	TagsByPhoto(ctx context.Context, photoID string) ([]store.PhotoTag, error)
	Add(ctx context.Context, photoID string, tag store.PhotoTag) error
}

// Enqueuer is the processing queue surface of the API.
type Enqueuer interface {
	Enqueue(ctx context.Context, photoID string) error
	Stats(ctx context.Context) (*queue.Stats, error)
	RetryFailed(ctx context.Context) (int, error)
}

// SnapshotSource yields the active reference snapshot.
type SnapshotSource interface {
	Current() (*reference.Snapshot, error)
}

// TagRefresher resynthesizes auto tags after a reviewer action changes
// a photo's people or event.
type TagRefresher interface {
	RefreshTags(ctx context.Context, photoID string) error
}

// OriginalStore persists submitted photo bytes.
type OriginalStore interface {
	StoreOriginal(contentHash string, data []byte, ext string) (string, error)
}
