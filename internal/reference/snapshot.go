package reference

import (
	"sort"
	"time"

	"github.com/coder/hnsw"
)

// HNSW parameters for the reference encoding index.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16

	// hnswSearchMultiplier requests extra candidates so the per-member
	// minimum survives duplicate-member hits in the neighbor list.
	hnswSearchMultiplier = 3

	// bruteForceLimit below which exact scan beats the index.
	bruteForceLimit = 64
)

// Snapshot is an immutable view of the reference data for one processing
// generation. All lookups are read-only and safe for concurrent use.
type Snapshot struct {
	Generation int64
	BuiltAt    time.Time

	members     map[int64]Member
	events      []Event
	registrants map[int64]map[int64]struct{} // event id -> member ids
	encodings   []Encoding
	graph       *hnsw.Graph[int64] // node key = index into encodings
}

// Build assembles a snapshot from raw reference rows. The exemplar cap keeps
// the most recent maxExemplars confirmed encodings per member so a burst of
// confirmations (or one bad one) cannot dominate the reference set; profile
// encodings are always kept. Opted-out members contribute no encodings.
func Build(generation int64, members []Member, events []Event, regs []Registration, encodings []Encoding, maxExemplars int) *Snapshot {
	s := &Snapshot{
		Generation:  generation,
		BuiltAt:     time.Now().UTC(),
		members:     make(map[int64]Member, len(members)),
		events:      make([]Event, len(events)),
		registrants: make(map[int64]map[int64]struct{}),
	}

	for _, m := range members {
		s.members[m.ID] = m
	}
	copy(s.events, events)
	for _, r := range regs {
		set, ok := s.registrants[r.EventID]
		if !ok {
			set = make(map[int64]struct{})
			s.registrants[r.EventID] = set
		}
		set[r.MemberID] = struct{}{}
	}

	s.encodings = capExemplars(s.filterOptOuts(encodings), maxExemplars)
	s.buildIndex()
	return s
}

func (s *Snapshot) filterOptOuts(encodings []Encoding) []Encoding {
	kept := make([]Encoding, 0, len(encodings))
	for _, e := range encodings {
		if m, ok := s.members[e.MemberID]; ok && m.OptOut {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// capExemplars limits confirmed encodings to the most recent maxExemplars per
// member. A cap <= 0 keeps everything.
func capExemplars(encodings []Encoding, maxExemplars int) []Encoding {
	if maxExemplars <= 0 {
		return encodings
	}

	confirmed := make(map[int64][]Encoding)
	kept := make([]Encoding, 0, len(encodings))
	for _, e := range encodings {
		if e.Source == SourceConfirmed {
			confirmed[e.MemberID] = append(confirmed[e.MemberID], e)
			continue
		}
		kept = append(kept, e)
	}

	for _, list := range confirmed {
		sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
		if len(list) > maxExemplars {
			list = list[:maxExemplars]
		}
		kept = append(kept, list...)
	}
	return kept
}

func (s *Snapshot) buildIndex() {
	if len(s.encodings) < bruteForceLimit {
		return
	}

	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	for i := range s.encodings {
		if len(s.encodings[i].Vector) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(int64(i), s.encodings[i].Vector))
	}
	s.graph = g
}

// Member looks up a member by id.
func (s *Snapshot) Member(id int64) (Member, bool) {
	m, ok := s.members[id]
	return m, ok
}

// Members returns all members in the snapshot, in no particular order.
func (s *Snapshot) Members() []Member {
	out := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	return out
}

// Events returns all events in the snapshot. Callers must not mutate the
// returned slice.
func (s *Snapshot) Events() []Event {
	return s.events
}

// Event looks up an event by id.
func (s *Snapshot) Event(id int64) (Event, bool) {
	for i := range s.events {
		if s.events[i].ID == id {
			return s.events[i], true
		}
	}
	return Event{}, false
}

// IsRegistrant reports whether the member RSVPed for the event.
func (s *Snapshot) IsRegistrant(eventID, memberID int64) bool {
	set, ok := s.registrants[eventID]
	if !ok {
		return false
	}
	_, ok = set[memberID]
	return ok
}

// Registrants returns the member ids registered for an event.
func (s *Snapshot) Registrants(eventID int64) []int64 {
	set := s.registrants[eventID]
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// EncodingCount returns the number of reference encodings after the exemplar cap.
func (s *Snapshot) EncodingCount() int {
	return len(s.encodings)
}

// MemberCount returns the number of members in the snapshot.
func (s *Snapshot) MemberCount() int {
	return len(s.members)
}

// MemberDistance is the best (minimum) distance between a query embedding and
// any of one member's reference encodings.
type MemberDistance struct {
	MemberID int64
	Distance float64
	Source   EncodingSource // source of the closest encoding
}

// NearestMembers returns up to k members ranked by their minimum encoding
// distance to the query. Small snapshots are scanned exactly; larger ones go
// through the HNSW index with an oversampled candidate pool.
func (s *Snapshot) NearestMembers(query []float32, k int) []MemberDistance {
	if len(s.encodings) == 0 || len(query) == 0 || k <= 0 {
		return nil
	}

	best := make(map[int64]MemberDistance)
	consider := func(idx int, dist float64) {
		enc := s.encodings[idx]
		cur, ok := best[enc.MemberID]
		if !ok || dist < cur.Distance {
			best[enc.MemberID] = MemberDistance{MemberID: enc.MemberID, Distance: dist, Source: enc.Source}
		}
	}

	if s.graph == nil {
		for i := range s.encodings {
			consider(i, CosineDistance(query, s.encodings[i].Vector))
		}
	} else {
		neighbors := s.graph.Search(query, k*hnswSearchMultiplier)
		for _, n := range neighbors {
			consider(int(n.Key), CosineDistance(query, n.Value))
		}
	}

	ranked := make([]MemberDistance, 0, len(best))
	for _, md := range best {
		ranked = append(ranked, md)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].MemberID < ranked[j].MemberID
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
