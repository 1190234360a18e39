// Package media provides file-backed playable items and resources.
package media

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"

	"voxbox/internal/app/player"
	"voxbox/internal/domain/track"
)

// Source builds playable items whose resources stream into the given
// sink, typically the transport's audio ingest.
type Source struct {
	sink io.Writer
}

// NewSource creates a source bound to a sink.
func NewSource(sink io.Writer) *Source {
	return &Source{sink: sink}
}

// Item builds a playable item for a local file, reading its tags for
// display metadata. Files without readable tags fall back to path-only
// metadata; a missing file is an error.
func (s *Source) Item(path, requester string) (*FileItem, error) {
	meta, err := Probe(path)
	if err != nil {
		return nil, err
	}
	meta.Requester = requester
	return &FileItem{meta: meta, sink: s.sink}, nil
}

// Probe reads a file's tags into track metadata. Unreadable tags are not
// an error; the path alone identifies the track then.
func Probe(path string) (track.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "open media file")
	}
	defer f.Close()

	meta := track.Track{Path: path}
	if m, err := tag.ReadFrom(f); err == nil {
		meta.Title = m.Title()
		meta.Artist = m.Artist()
		meta.Album = m.Album()
	}
	return meta, nil
}

// ItemFromTrack builds a playable item from already-known metadata,
// typically a library entry.
func (s *Source) ItemFromTrack(t track.Track) *FileItem {
	return &FileItem{meta: t, sink: s.sink}
}

// FileItem is a local-file playable item.
type FileItem struct {
	meta track.Track
	sink io.Writer
}

// Track returns the item's display metadata.
func (i *FileItem) Track() track.Track {
	return i.meta
}

// Open produces a single-use resource for the item. Each call opens the
// file anew; resources are never shared between plays.
func (i *FileItem) Open(ctx context.Context) (player.Resource, error) {
	f, err := os.Open(i.meta.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open media file")
	}
	return newFileResource(i.meta, f, i.sink), nil
}
