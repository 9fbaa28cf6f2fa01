package store

import "time"

// Photo is the persisted record of one submitted photo.
type Photo struct {
	ID                string
	ContentHash       string
	PHash             string
	DHash             string
	OriginalPath      string
	OriginalFilename  string
	SubmitterMemberID *int64
	CapturedAt        *time.Time
	CapturedFromMtime bool
	Latitude          *float64
	Longitude         *float64
	CameraMake        string
	CameraModel       string
	Width             int
	Height            int
	Status            string
	EventID           *int64
	CandidateEventIDs []int64 // tied event candidates, set when matching was ambiguous
	DuplicateOf       *string
	NearDuplicate     bool
	Caption           *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// StoredFace is one detected face region persisted for a photo.
// Once a reviewer sets ConfirmedMemberID the identification is final:
// reprocessing never touches a confirmed row.
type StoredFace struct {
	ID                int64
	PhotoID           string
	FaceIndex         int
	Embedding         []float32
	BBox              []float64 // [x1, y1, x2, y2] relative to image size (0-1)
	DetScore          float64
	MatchedMemberID   *int64
	MatchDistance     *float64
	MatchBand         string
	ConfirmedMemberID *int64
	ConfirmedAt       *time.Time
	IsGuest           bool
	CreatedAt         time.Time
}

// PhotoTag is one searchable label attached to a photo.
type PhotoTag struct {
	Tag           string
	TagType       string
	AutoGenerated bool
}

// DerivativeRecord is one rendered tier on disk.
type DerivativeRecord struct {
	Tier   string
	Path   string
	Width  int
	Height int
}

// PhotoFilter narrows gallery and review listings. Zero values mean
// "no filter" for that field.
type PhotoFilter struct {
	Status   string
	EventID  *int64
	MemberID *int64 // member identified (matched or confirmed) in the photo
	Tag      string
	Year     int
	Limit    int
	Offset   int
}
