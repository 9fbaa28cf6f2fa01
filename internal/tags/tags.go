// Package tags synthesizes searchable tags for a photo from its
// metadata, matched event and identified people. Synthesis is pure and
// deterministic: the same inputs always yield the same tag set
// regardless of input ordering.
package tags

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/clubgallery/photoflow/internal/facematch"
	"github.com/clubgallery/photoflow/internal/reference"
)

// Type categorizes a tag for filtering in the gallery.
type Type string

const (
	TypeDate      Type = "date"
	TypeEvent     Type = "event"
	TypeActivity  Type = "activity"
	TypeLocation  Type = "location"
	TypePerson    Type = "person"
	TypeSubmitter Type = "submitter"
)

// ValidType reports whether s is one of the known tag types.
func ValidType(s string) bool {
	switch Type(s) {
	case TypeDate, TypeEvent, TypeActivity, TypeLocation, TypePerson, TypeSubmitter:
		return true
	}
	return false
}

// Tag is one searchable label on a photo.
type Tag struct {
	Value string
	Type  Type
}

// Input carries everything tag synthesis looks at.
type Input struct {
	TakenAt       time.Time
	Event         *reference.Event
	PersonNames   []string // display names of identified, non-guest people
	SubmitterName string
}

const maxTagLength = 30

var (
	splitPattern    = regexp.MustCompile(`[\s\-_,./]+`)
	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// Synthesize builds the full tag set for a photo. Duplicates collapse
// and the result is sorted by type then value.
func Synthesize(in Input) []Tag {
	var out []Tag

	if !in.TakenAt.IsZero() {
		out = append(out,
			Tag{Value: in.TakenAt.Format("2006"), Type: TypeDate},
			Tag{Value: in.TakenAt.Format("Jan2006"), Type: TypeDate},
		)
	}

	if in.Event != nil {
		if v := Sanitize(in.Event.Name); v != "" {
			out = append(out, Tag{Value: v, Type: TypeEvent})
		}
		if v := Sanitize(in.Event.ActivityGroup); v != "" {
			out = append(out, Tag{Value: v, Type: TypeActivity})
		}
		if v := Sanitize(in.Event.LocationName); v != "" {
			out = append(out, Tag{Value: v, Type: TypeLocation})
		}
	}

	for _, name := range in.PersonNames {
		if v := Sanitize(name); v != "" {
			out = append(out, Tag{Value: v, Type: TypePerson})
		}
	}

	if v := Sanitize(in.SubmitterName); v != "" {
		out = append(out, Tag{Value: "SubmittedBy" + v, Type: TypeSubmitter})
	}

	return dedupe(out)
}

// Sanitize converts free text into a CamelCase tag: diacritics
// stripped, words capitalized and joined, non-alphanumerics removed,
// capped at 30 characters. Returns "" when nothing survives.
func Sanitize(text string) string {
	text = facematch.RemoveDiacritics(text)

	var b strings.Builder
	for _, word := range splitPattern.Split(text, -1) {
		if word == "" {
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(strings.ToLower(word[1:]))
	}

	camel := nonAlphanumeric.ReplaceAllString(b.String(), "")
	if len(camel) > maxTagLength {
		camel = camel[:maxTagLength]
	}
	return camel
}

func dedupe(in []Tag) []Tag {
	seen := make(map[Tag]struct{}, len(in))
	out := make([]Tag, 0, len(in))
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})
	return out
}
