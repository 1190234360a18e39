package media

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxbox/internal/domain/track"
)

// syncBuffer is a goroutine-safe sink for the frame pump.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func writeAudioFile(t *testing.T, size int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.mp3")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestProbeFallsBackToPathOnly(t *testing.T) {
	path := writeAudioFile(t, 64)

	meta, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, path, meta.Path)
	assert.Empty(t, meta.Title)
	assert.Empty(t, meta.Artist)
}

func TestProbeMissingFile(t *testing.T) {
	_, err := Probe(filepath.Join(t.TempDir(), "absent.mp3"))
	assert.Error(t, err)
}

func TestItemCarriesRequester(t *testing.T) {
	path := writeAudioFile(t, 64)
	src := NewSource(&syncBuffer{})

	item, err := src.Item(path, "dan")
	require.NoError(t, err)
	assert.Equal(t, "dan", item.Track().Requester)
	assert.Equal(t, path, item.Track().Path)
}

func TestItemFromTrack(t *testing.T) {
	src := NewSource(&syncBuffer{})
	meta := track.Track{Path: "/m/a.mp3", Title: "A"}

	item := src.ItemFromTrack(meta)
	assert.Equal(t, meta, item.Track())
}

func TestOpenMissingFile(t *testing.T) {
	src := NewSource(&syncBuffer{})
	item := src.ItemFromTrack(track.Track{Path: filepath.Join(t.TempDir(), "absent.mp3")})

	_, err := item.Open(context.Background())
	assert.Error(t, err)
}

func TestResourceStreamsWholeFile(t *testing.T) {
	size := frameSize*2 + 100
	path := writeAudioFile(t, size)
	sink := &syncBuffer{}
	src := NewSource(sink)

	item := src.ItemFromTrack(track.Track{Path: path})
	res, err := item.Open(context.Background())
	require.NoError(t, err)
	defer res.Close()

	require.NoError(t, res.Start(context.Background()))
	// The first frame is written before Start returns.
	assert.GreaterOrEqual(t, sink.Len(), frameSize)

	require.NoError(t, res.Wait())
	assert.Equal(t, size, sink.Len())
}

func TestResourceCancelStopsPump(t *testing.T) {
	path := writeAudioFile(t, frameSize*50)
	sink := &syncBuffer{}
	src := NewSource(sink)

	item := src.ItemFromTrack(track.Track{Path: path})
	res, err := item.Open(context.Background())
	require.NoError(t, err)
	defer res.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, res.Start(ctx))
	cancel()

	assert.ErrorIs(t, res.Wait(), context.Canceled)
	assert.Less(t, sink.Len(), frameSize*50)
}

func TestResourceCloseIsIdempotent(t *testing.T) {
	path := writeAudioFile(t, 64)
	src := NewSource(&syncBuffer{})

	item := src.ItemFromTrack(track.Track{Path: path})
	res, err := item.Open(context.Background())
	require.NoError(t, err)

	assert.NoError(t, res.Close())
	assert.NoError(t, res.Close())
}

func TestSetVolumeLogarithmicCurve(t *testing.T) {
	path := writeAudioFile(t, 64)
	src := NewSource(&syncBuffer{})

	item := src.ItemFromTrack(track.Track{Path: path})
	opened, err := item.Open(context.Background())
	require.NoError(t, err)
	defer opened.Close()

	res, ok := opened.(*FileResource)
	require.True(t, ok)

	// Defaults to unity gain.
	assert.InDelta(t, 1.0, res.Gain(), 1e-9)

	res.SetVolumeLogarithmic(1)
	assert.InDelta(t, 1.0, res.Gain(), 1e-9)

	res.SetVolumeLogarithmic(0)
	assert.Zero(t, res.Gain())

	// Half volume lands well below half gain on the loudness curve.
	res.SetVolumeLogarithmic(0.5)
	assert.InDelta(t, math.Pow(0.5, volumeExponent), res.Gain(), 1e-9)
	assert.Less(t, res.Gain(), 0.5)

	// Negative fractions clamp to silence.
	res.SetVolumeLogarithmic(-0.3)
	assert.Zero(t, res.Gain())
}
