// Package reference holds the immutable snapshot of members, events,
// registrations and face encodings that the processing pipeline matches
// against. Snapshots are built by the sync side and swapped in atomically;
// the pipeline never mutates one.
package reference

import "time"

// Member is a community member as known by the organization management system.
type Member struct {
	ID          int64
	DisplayName string
	OptOut      bool // member declined face recognition
}

// Event is a scheduled club event. Lat/Lon are zero with HasLocation false
// when the venue was never geocoded.
type Event struct {
	ID            int64
	Name          string
	Starts        time.Time
	Ends          time.Time
	HasLocation   bool
	Lat           float64
	Lon           float64
	RadiusMeters  float64 // 0 means unknown, matcher applies its default
	ActivityGroup string
	LocationName  string
	IsPublic      bool
}

// Registration records an RSVP. It biases matching priority, it never hard
// filters.
type Registration struct {
	EventID  int64
	MemberID int64
}

// EncodingSource distinguishes profile-photo encodings from reviewer-confirmed
// exemplars.
type EncodingSource string

const (
	SourceProfile   EncodingSource = "profile"
	SourceConfirmed EncodingSource = "confirmed"
)

// Encoding is one reference face embedding for a member. A member can have
// several; each is compared independently and the per-member distance is the
// minimum.
type Encoding struct {
	ID        int64
	MemberID  int64
	Vector    []float32
	Source    EncodingSource
	CreatedAt time.Time
}
