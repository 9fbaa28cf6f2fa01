package facematch

import (
	"sort"

	"github.com/clubgallery/photoflow/internal/reference"
)

// Band classifies how confident a face-to-member match is.
type Band string

const (
	// BandAuto means the match is strong enough to tag without review.
	BandAuto Band = "auto"
	// BandSuggested means the match is surfaced to a reviewer for confirmation.
	BandSuggested Band = "suggested"
	// BandNone means no member matched within the suggest threshold.
	BandNone Band = "unidentified"
)

const (
	// Detections overlapping this much are the same face reported twice.
	overlapIoUThreshold = 0.6
	defaultTopK         = 5
)

// Candidate is one member considered for a face region.
type Candidate struct {
	MemberID   int64
	Distance   float64
	Source     reference.EncodingSource
	Registrant bool
}

// Face is a detected region with its match outcome. MemberID is zero
// when the face is unidentified.
type Face struct {
	BBox       []float64 // [x1, y1, x2, y2] in pixels
	DetScore   float64
	Embedding  []float32
	Band       Band
	MemberID   int64
	Distance   float64
	Registrant bool
	Candidates []Candidate
}

// Matcher assigns detected faces to members using the reference snapshot.
type Matcher struct {
	high   float64 // below this: auto-tag
	low    float64 // up to this: suggested
	margin float64 // registrant tie preference and suggest relaxation
	topK   int
}

// NewMatcher creates a matcher with the given distance thresholds.
// high must be below low; margin widens the suggest band for members
// registered to the photo's event.
func NewMatcher(high, low, margin float64) *Matcher {
	return &Matcher{high: high, low: low, margin: margin, topK: defaultTopK}
}

// MatchFaces matches detected face regions against the snapshot.
// eventID, when non-nil, marks candidates registered to that event so
// they get the registrant preference. A member is assigned to at most
// one face per photo: when two regions claim the same member, the
// closer region keeps it and the other falls back to its next-best
// distinct candidate.
func (m *Matcher) MatchFaces(dets []Detection, snap *reference.Snapshot, eventID *int64) []Face {
	merged := mergeOverlapping(dets, overlapIoUThreshold)

	faces := make([]Face, len(merged))
	excluded := make([]map[int64]struct{}, len(merged))
	for i, d := range merged {
		faces[i] = Face{
			BBox:       d.BBox,
			DetScore:   d.DetScore,
			Embedding:  d.Embedding,
			Band:       BandNone,
			Candidates: m.candidates(d.Embedding, snap, eventID),
		}
		excluded[i] = make(map[int64]struct{})
	}

	// Resolve member-uniqueness conflicts. Each round assigns every
	// face its best non-excluded candidate; when a member is claimed by
	// two faces the farther one is excluded and re-picks next round.
	for {
		for i := range faces {
			m.assign(&faces[i], excluded[i])
		}

		owner := make(map[int64]int, len(faces))
		conflict := false
		for i := range faces {
			mid := faces[i].MemberID
			if mid == 0 {
				continue
			}
			j, taken := owner[mid]
			if !taken {
				owner[mid] = i
				continue
			}
			conflict = true
			if faces[i].Distance < faces[j].Distance {
				excluded[j][mid] = struct{}{}
				owner[mid] = i
			} else {
				excluded[i][mid] = struct{}{}
			}
		}
		if !conflict {
			return faces
		}
	}
}

// candidates ranks the nearest members for an embedding, sorted by
// distance ascending.
func (m *Matcher) candidates(embedding []float32, snap *reference.Snapshot, eventID *int64) []Candidate {
	if snap == nil || len(embedding) == 0 {
		return nil
	}
	ranked := snap.NearestMembers(embedding, m.topK)
	cands := make([]Candidate, 0, len(ranked))
	for _, r := range ranked {
		c := Candidate{
			MemberID: r.MemberID,
			Distance: r.Distance,
			Source:   r.Source,
		}
		if eventID != nil {
			c.Registrant = snap.IsRegistrant(*eventID, r.MemberID)
		}
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Distance != cands[j].Distance {
			return cands[i].Distance < cands[j].Distance
		}
		return cands[i].MemberID < cands[j].MemberID
	})
	return cands
}

// assign picks the best available candidate for a face and classifies it.
func (m *Matcher) assign(f *Face, excluded map[int64]struct{}) {
	f.Band = BandNone
	f.MemberID = 0
	f.Registrant = false
	f.Distance = 0

	var best Candidate
	bestBand := BandNone
	for _, c := range f.Candidates {
		if _, skip := excluded[c.MemberID]; skip {
			continue
		}
		b := m.classify(c)
		switch {
		case bandRank(b) > bandRank(bestBand):
			best, bestBand = c, b
		case b == bestBand && b != BandNone && c.Registrant && !best.Registrant &&
			c.Distance <= best.Distance+m.margin:
			// Registrants win ties against a marginally closer outsider.
			best = c
		}
	}

	if bestBand == BandNone {
		// Keep the closest distance visible for the reviewer.
		for _, c := range f.Candidates {
			if _, skip := excluded[c.MemberID]; !skip {
				f.Distance = c.Distance
				break
			}
		}
		return
	}

	f.Band = bestBand
	f.MemberID = best.MemberID
	f.Distance = best.Distance
	f.Registrant = best.Registrant
}

// classify bands a candidate by distance. Both threshold boundaries
// fall into the suggested band; registrants get the suggest limit
// relaxed by the margin.
func (m *Matcher) classify(c Candidate) Band {
	limit := m.low
	if c.Registrant {
		limit += m.margin
	}
	switch {
	case c.Distance < m.high:
		return BandAuto
	case c.Distance <= limit:
		return BandSuggested
	default:
		return BandNone
	}
}

func bandRank(b Band) int {
	switch b {
	case BandAuto:
		return 2
	case BandSuggested:
		return 1
	default:
		return 0
	}
}
