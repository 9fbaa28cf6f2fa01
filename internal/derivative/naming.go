package derivative

import (
	"strings"
	"time"

	"github.com/clubgallery/photoflow/internal/facematch"
)

// ExportFilename builds a meaningful download name for a photo,
// replacing camera names like IMG_1234.jpg.
//
// Format: YYYYMMDD_HHMMSS_<initials>_<short><ext>
// Example: 20250915_143022_JD_a7b3.jpg
func ExportFilename(takenAt time.Time, submitterName, contentHash, ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" || ext == ".jpeg" {
		ext = ".jpg"
	}

	short := strings.ToLower(contentHash)
	if len(short) > 4 {
		short = short[:4]
	}
	for len(short) < 4 {
		short += "0"
	}

	return takenAt.Format("20060102_150405") + "_" + initialsOf(submitterName) + "_" + short + ext
}

// initialsOf extracts up to two initials from a display name.
// "John Doe" -> "JD", "Madonna" -> "MA", unknown -> "XX".
func initialsOf(name string) string {
	name = facematch.RemoveDiacritics(strings.TrimSpace(name))
	words := strings.Fields(name)

	var initials []rune
	switch {
	case len(words) >= 2:
		initials = []rune{[]rune(words[0])[0], []rune(words[len(words)-1])[0]}
	case len(words) == 1:
		initials = []rune(words[0])
		if len(initials) > 2 {
			initials = initials[:2]
		}
	default:
		return "XX"
	}
	return strings.ToUpper(string(initials))
}
