package facematch

import (
	"math"
	"testing"
	"time"

	"github.com/clubgallery/photoflow/internal/reference"
)

const testEventID int64 = 10

// testSnapshot builds a snapshot with one reference encoding per member
// and the given members registered for the test event.
func testSnapshot(t *testing.T, encodings map[int64][]float32, registered ...int64) *reference.Snapshot {
	t.Helper()

	var members []reference.Member
	var encs []reference.Encoding
	for id, vec := range encodings {
		members = append(members, reference.Member{ID: id, DisplayName: "Member"})
		encs = append(encs, reference.Encoding{
			ID:        id,
			MemberID:  id,
			Vector:    vec,
			Source:    reference.SourceProfile,
			CreatedAt: time.Now(),
		})
	}

	events := []reference.Event{{ID: testEventID, Name: "Test Event"}}
	var regs []reference.Registration
	for _, id := range registered {
		regs = append(regs, reference.Registration{EventID: testEventID, MemberID: id})
	}

	return reference.Build(1, members, events, regs, encs, 0)
}

// unitVec3 builds a unit vector from up to three components, normalizing
// the remainder into the third axis.
func unitVec3(x, y float64) []float32 {
	z := math.Sqrt(1 - x*x - y*y)
	return []float32{float32(x), float32(y), float32(z)}
}

func TestClassify(t *testing.T) {
	m := NewMatcher(0.4, 0.6, 0.1)

	tests := []struct {
		name       string
		distance   float64
		registrant bool
		expected   Band
	}{
		{"well under high", 0.3, false, BandAuto},
		{"exactly high goes to suggested", 0.4, false, BandSuggested},
		{"mid band", 0.5, false, BandSuggested},
		{"exactly low stays suggested", 0.6, false, BandSuggested},
		{"past low", 0.61, false, BandNone},
		{"registrant gets relaxed limit", 0.65, true, BandSuggested},
		{"registrant past relaxed limit", 0.71, true, BandNone},
		{"non-registrant gets no relaxation", 0.65, false, BandNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.classify(Candidate{Distance: tt.distance, Registrant: tt.registrant})
			if got != tt.expected {
				t.Errorf("classify(distance=%v, registrant=%v) = %v, want %v",
					tt.distance, tt.registrant, got, tt.expected)
			}
		})
	}
}

func TestMatchFacesBands(t *testing.T) {
	// Member 1 is registered for the event, member 2 is not. Face one
	// sits at distance 0.3 from member 1, face two at 0.5 from member 2.
	snap := testSnapshot(t, map[int64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
	}, 1)

	m := NewMatcher(0.4, 0.6, 0.1)
	eventID := testEventID
	dets := []Detection{
		{BBox: []float64{0, 0, 100, 100}, DetScore: 0.95, Embedding: unitVec3(0.7, 0)},
		{BBox: []float64{200, 0, 300, 100}, DetScore: 0.92, Embedding: unitVec3(0, 0.5)},
	}

	faces := m.MatchFaces(dets, snap, &eventID)
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}

	if faces[0].Band != BandAuto || faces[0].MemberID != 1 {
		t.Errorf("face 0: band=%v member=%d, want auto member 1", faces[0].Band, faces[0].MemberID)
	}
	if !faces[0].Registrant {
		t.Error("face 0 should be marked as a registrant match")
	}
	if faces[1].Band != BandSuggested || faces[1].MemberID != 2 {
		t.Errorf("face 1: band=%v member=%d, want suggested member 2", faces[1].Band, faces[1].MemberID)
	}
	if faces[1].Registrant {
		t.Error("face 1 should not be marked as a registrant match")
	}
}

func TestMatchFacesRegistrantTiePreference(t *testing.T) {
	// Member 1 (not registered) at 0.45, member 2 (registered) at 0.5.
	// Both suggested; the registrant wins because the gap is within the
	// margin.
	snap := testSnapshot(t, map[int64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
	}, 2)

	m := NewMatcher(0.4, 0.6, 0.1)
	eventID := testEventID
	dets := []Detection{
		{BBox: []float64{0, 0, 100, 100}, DetScore: 0.9, Embedding: unitVec3(0.55, 0.5)},
	}

	faces := m.MatchFaces(dets, snap, &eventID)
	if len(faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(faces))
	}
	if faces[0].MemberID != 2 {
		t.Errorf("assigned member = %d, want registrant member 2", faces[0].MemberID)
	}
	if faces[0].Band != BandSuggested {
		t.Errorf("band = %v, want suggested", faces[0].Band)
	}
}

func TestMatchFacesRegistrantLosesPastMargin(t *testing.T) {
	// Member 1 (not registered) at 0.42, member 2 (registered) at 0.58.
	// The gap exceeds the margin, so the closer outsider keeps the match.
	snap := testSnapshot(t, map[int64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
	}, 2)

	m := NewMatcher(0.4, 0.6, 0.1)
	eventID := testEventID
	dets := []Detection{
		{BBox: []float64{0, 0, 100, 100}, DetScore: 0.9, Embedding: unitVec3(0.58, 0.42)},
	}

	faces := m.MatchFaces(dets, snap, &eventID)
	if faces[0].MemberID != 1 {
		t.Errorf("assigned member = %d, want closer member 1", faces[0].MemberID)
	}
}

func TestMatchFacesMemberUniqueness(t *testing.T) {
	// Both faces are closest to member 1; the closer face keeps it and
	// the other falls back to its next-best distinct member.
	snap := testSnapshot(t, map[int64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
	})

	m := NewMatcher(0.4, 0.6, 0.1)
	dets := []Detection{
		{BBox: []float64{0, 0, 100, 100}, DetScore: 0.95, Embedding: unitVec3(0.8, 0)},
		{BBox: []float64{200, 0, 300, 100}, DetScore: 0.93, Embedding: unitVec3(0.7, 0.55)},
	}

	faces := m.MatchFaces(dets, snap, nil)
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].MemberID != 1 || faces[0].Band != BandAuto {
		t.Errorf("face 0: member=%d band=%v, want member 1 auto", faces[0].MemberID, faces[0].Band)
	}
	if faces[1].MemberID != 2 || faces[1].Band != BandSuggested {
		t.Errorf("face 1: member=%d band=%v, want member 2 suggested", faces[1].MemberID, faces[1].Band)
	}
}

func TestMatchFacesUnidentified(t *testing.T) {
	// Nearest member is past the suggest threshold.
	snap := testSnapshot(t, map[int64][]float32{
		1: {1, 0, 0},
	})

	m := NewMatcher(0.4, 0.6, 0.1)
	dets := []Detection{
		{BBox: []float64{0, 0, 100, 100}, DetScore: 0.9, Embedding: unitVec3(0.2, 0)},
	}

	faces := m.MatchFaces(dets, snap, nil)
	if faces[0].Band != BandNone {
		t.Errorf("band = %v, want unidentified", faces[0].Band)
	}
	if faces[0].MemberID != 0 {
		t.Errorf("member = %d, want 0", faces[0].MemberID)
	}
	if len(faces[0].Candidates) == 0 {
		t.Error("unidentified face should still carry candidates for review")
	}
	if math.Abs(faces[0].Distance-0.8) > 0.01 {
		t.Errorf("distance = %v, want ~0.8 for the reviewer", faces[0].Distance)
	}
}

func TestMatchFacesNoDetections(t *testing.T) {
	snap := testSnapshot(t, map[int64][]float32{1: {1, 0, 0}})
	m := NewMatcher(0.4, 0.6, 0.1)

	faces := m.MatchFaces(nil, snap, nil)
	if len(faces) != 0 {
		t.Errorf("expected no faces, got %d", len(faces))
	}
}
