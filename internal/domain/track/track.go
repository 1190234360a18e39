// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"strings"
	"time"
)

// Track holds the display metadata of a playable item. It carries no
// handle to the underlying byte stream; opening a stream is the job of
// the item that owns the track.
type Track struct {
	ID        string        // Library ID or source-specific identifier
	Title     string        // Track title
	Artist    string        // Artist name
	Album     string        // Album name
	Duration  time.Duration // Track duration (zero if unknown)
	Path      string        // Local path or source URL
	Requester string        // Display name of whoever queued it
}

// Announcement builds the "now playing" notice text for the track.
func (t Track) Announcement() string {
	var b strings.Builder
	b.WriteString("Now playing: ")
	b.WriteString(t.Display())
	if t.Requester != "" {
		fmt.Fprintf(&b, " (requested by %s)", t.Requester)
	}
	return b.String()
}

// Display returns "Artist - Title", falling back to whatever is known.
func (t Track) Display() string {
	switch {
	case t.Artist != "" && t.Title != "":
		return t.Artist + " - " + t.Title
	case t.Title != "":
		return t.Title
	default:
		return t.Path
	}
}
