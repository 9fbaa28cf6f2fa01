// Package eventmatch maps a photo's capture time and GPS position to a club
// event from the reference snapshot. Matching is pure: the snapshot goes in,
// a verdict comes out, nothing is mutated.
package eventmatch

import (
	"math"
	"sort"
	"time"

	"github.com/clubgallery/photoflow/internal/reference"
)

// Outcome is the event-matching verdict for one photo.
type Outcome string

const (
	// Matched means exactly one event survived filtering and ranking.
	Matched Outcome = "matched"
	// Unmatched means no event fit; the photo needs manual assignment.
	Unmatched Outcome = "unmatched"
	// Ambiguous means the top candidates tied; both are surfaced to the
	// reviewer and no event id is assigned.
	Ambiguous Outcome = "ambiguous"
)

// Candidate is one ranked event candidate. DistanceMeters is negative when
// the photo or the event had no usable position.
type Candidate struct {
	Event          reference.Event
	DistanceMeters float64
	MidpointGap    time.Duration
}

// Match is the full matching result, candidates in rank order.
type Match struct {
	Outcome    Outcome
	Event      *reference.Event
	Candidates []Candidate
	DateOnly   bool // GPS was missing, confidence degraded
}

// Matcher holds the matching tolerances.
type Matcher struct {
	window        time.Duration // padding around each event's date range
	defaultRadius float64       // meters, for events with a center but no radius
	epsilon       float64       // meters, distance tie threshold
}

// gapEpsilon is the midpoint-proximity tie threshold for date-only matching:
// two events whose midpoints are this close to the capture time cannot be
// told apart by date alone.
const gapEpsilon = time.Minute

func NewMatcher(windowHours int, defaultRadiusMeters, epsilonMeters float64) *Matcher {
	return &Matcher{
		window:        time.Duration(windowHours) * time.Hour,
		defaultRadius: defaultRadiusMeters,
		epsilon:       epsilonMeters,
	}
}

// Match ranks the snapshot's events against the capture time and optional
// position. lat/lon may be nil; matching then degrades to date-only.
func (m *Matcher) Match(capturedAt time.Time, lat, lon *float64, snapshot *reference.Snapshot) Match {
	hasGPS := lat != nil && lon != nil

	var candidates []Candidate
	for _, ev := range snapshot.Events() {
		if !m.inWindow(capturedAt, ev) {
			continue
		}

		c := Candidate{
			Event:          ev,
			DistanceMeters: -1,
			MidpointGap:    absDuration(capturedAt.Sub(midpoint(ev))),
		}

		if hasGPS && ev.HasLocation {
			dist := Haversine(*lat, *lon, ev.Lat, ev.Lon)
			radius := ev.RadiusMeters
			if radius <= 0 {
				radius = m.defaultRadius
			}
			if dist > radius {
				continue
			}
			c.DistanceMeters = dist
		}

		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return Match{Outcome: Unmatched, DateOnly: !hasGPS}
	}

	sort.Slice(candidates, func(i, j int) bool {
		di, dj := rankDistance(candidates[i]), rankDistance(candidates[j])
		if di != dj {
			return di < dj
		}
		if candidates[i].MidpointGap != candidates[j].MidpointGap {
			return candidates[i].MidpointGap < candidates[j].MidpointGap
		}
		return candidates[i].Event.ID < candidates[j].Event.ID
	})

	if len(candidates) == 1 {
		return Match{Outcome: Matched, Event: &candidates[0].Event, Candidates: candidates, DateOnly: !hasGPS}
	}

	if m.tied(candidates[0], candidates[1]) {
		return Match{Outcome: Ambiguous, Candidates: candidates, DateOnly: !hasGPS}
	}

	return Match{Outcome: Matched, Event: &candidates[0].Event, Candidates: candidates, DateOnly: !hasGPS}
}

// inWindow reports whether capturedAt falls inside the event's date range
// padded by the tolerance window. All-day and multi-day events carry their
// real end time; the padding absorbs clock drift and early/late shots.
func (m *Matcher) inWindow(capturedAt time.Time, ev reference.Event) bool {
	start := ev.Starts.Add(-m.window)
	end := ev.Ends.Add(m.window)
	return !capturedAt.Before(start) && !capturedAt.After(end)
}

// tied reports whether the two top candidates cannot be separated: both
// distance-ranked within epsilon meters of each other, or both date-only with
// near-equal midpoint gaps.
func (m *Matcher) tied(a, b Candidate) bool {
	if a.DistanceMeters >= 0 && b.DistanceMeters >= 0 {
		return math.Abs(a.DistanceMeters-b.DistanceMeters) < m.epsilon
	}
	if a.DistanceMeters < 0 && b.DistanceMeters < 0 {
		return absDuration(a.MidpointGap-b.MidpointGap) < gapEpsilon
	}
	// One candidate has a confirmed position, the other does not; the
	// positioned one wins outright.
	return false
}

// rankDistance orders positioned candidates before date-only ones.
func rankDistance(c Candidate) float64 {
	if c.DistanceMeters < 0 {
		return math.MaxFloat64
	}
	return c.DistanceMeters
}

func midpoint(ev reference.Event) time.Time {
	return ev.Starts.Add(ev.Ends.Sub(ev.Starts) / 2)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// earthRadiusMeters per the WGS-84 mean radius.
const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance between two coordinates in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
