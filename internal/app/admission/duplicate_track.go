package admission

import (
	"context"
	"regexp"
	"strings"

	"voxbox/internal/domain/track"
)

// DuplicateTrackCheck rejects tracks already waiting in the queue.
// Detects:
// - Exact path or library ID matches
// - Remasters (normalized title + same artist)
// Excludes:
// - Cover songs (same title but different artist)
type DuplicateTrackCheck struct{}

// NewDuplicateTrackCheck creates a new duplicate track check.
func NewDuplicateTrackCheck() *DuplicateTrackCheck {
	return &DuplicateTrackCheck{}
}

// Name returns the check name.
func (c *DuplicateTrackCheck) Name() string {
	return "duplicate_track"
}

// Description returns the check description.
func (c *DuplicateTrackCheck) Description() string {
	return "Rejects tracks already queued, remastered versions included. Covers by a different artist are allowed."
}

// ReturnCodes returns possible return codes.
func (c *DuplicateTrackCheck) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the check configuration.
func (c *DuplicateTrackCheck) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the candidate duplicates a queued track.
func (c *DuplicateTrackCheck) Check(ctx context.Context, candidate track.Track, queued []track.Track) Result {
	for _, q := range queued {
		// 1. Exact identity match
		if q.Path != "" && q.Path == candidate.Path {
			return Reject("duplicate_track")
		}
		if q.ID != "" && q.ID == candidate.ID {
			return Reject("duplicate_track")
		}

		// 2. Remaster detection: normalized title + same artist
		if isRemaster(q, candidate) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

// isRemaster checks if two tracks are the same song in another edition.
func isRemaster(a, b track.Track) bool {
	name1 := normalizeTitle(a.Title)
	name2 := normalizeTitle(b.Title)

	if name1 == "" || name1 != name2 {
		return false
	}

	// Same normalized title - a different artist means a cover, which
	// is allowed.
	return a.Artist != "" && strings.EqualFold(a.Artist, b.Artist)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}

	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live`),             // "- Live"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}

	spaceRuns = regexp.MustCompile(`\s+`)
)

// normalizeTitle removes remaster information and version details.
func normalizeTitle(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaceRuns.ReplaceAllString(normalized, " ")
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

func init() {
	Register("duplicate_track", func() Check {
		return NewDuplicateTrackCheck()
	})
}
