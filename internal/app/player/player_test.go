package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxbox/internal/domain/track"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeResource blocks in Wait until finish is called. Start fails when
// startErr is set.
type fakeResource struct {
	meta     track.Track
	startErr error

	release   chan error
	done      chan struct{}
	closeOnce sync.Once
	finOnce   sync.Once

	mu     sync.Mutex
	closed bool
}

func newFakeResource(title string) *fakeResource {
	return &fakeResource{
		meta:    track.Track{Title: title},
		release: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (r *fakeResource) Track() track.Track             { return r.meta }
func (r *fakeResource) SetVolumeLogarithmic(_ float64) {}

func (r *fakeResource) Start(_ context.Context) error { return r.startErr }

func (r *fakeResource) Wait() error {
	select {
	case err := <-r.release:
		return err
	case <-r.done:
		return context.Canceled
	}
}

func (r *fakeResource) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
	})
	return nil
}

func (r *fakeResource) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *fakeResource) finish(err error) {
	r.finOnce.Do(func() { r.release <- err })
}

// collect drains transitions from the player until the expected count
// arrives or the deadline passes.
func collect(t *testing.T, p *Player, n int) []StateChange {
	t.Helper()

	var out []StateChange
	deadline := time.After(waitFor)
	for len(out) < n {
		select {
		case ev := <-p.Events():
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("expected %d transitions, got %v", n, out)
		}
	}
	return out
}

func TestNewPlayerIsIdle(t *testing.T) {
	p := New()
	defer p.Close()

	assert.Equal(t, StateIdle, p.State())
	assert.Nil(t, p.Current())
}

func TestPlayEmitsLifecycleTransitions(t *testing.T) {
	p := New()
	defer p.Close()

	res := newFakeResource("alpha")
	p.Play(res)

	got := collect(t, p, 2)
	assert.Equal(t, StateChange{Old: StateIdle, New: StateBuffering}, got[0])
	assert.Equal(t, StateChange{Old: StateBuffering, New: StatePlaying}, got[1])

	res.finish(nil)

	got = collect(t, p, 1)
	assert.Equal(t, StateChange{Old: StatePlaying, New: StateIdle}, got[0])
	assert.Nil(t, p.Current())
	assert.True(t, res.isClosed())
}

func TestStartFailureSurfacesOnErrorStreamOnly(t *testing.T) {
	p := New()
	defer p.Close()

	res := newFakeResource("alpha")
	res.startErr = errors.New("no audio")
	p.Play(res)

	select {
	case err := <-p.Errors():
		assert.ErrorContains(t, err, "no audio")
	case <-time.After(waitFor):
		t.Fatal("expected playback error")
	}

	assert.Equal(t, StateIdle, p.State())
	assert.Nil(t, p.Current())

	// The failure is not also reported as a finished track: the only
	// transition on the stream is the initial buffering one.
	got := collect(t, p, 1)
	assert.Equal(t, StateChange{Old: StateIdle, New: StateBuffering}, got[0])
	select {
	case ev := <-p.Events():
		t.Fatalf("unexpected transition %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamFailureSurfacesOnErrorStreamOnly(t *testing.T) {
	p := New()
	defer p.Close()

	res := newFakeResource("alpha")
	p.Play(res)
	collect(t, p, 2)

	res.finish(errors.New("stream died"))

	select {
	case err := <-p.Errors():
		assert.ErrorContains(t, err, "stream died")
	case <-time.After(waitFor):
		t.Fatal("expected playback error")
	}
	assert.Equal(t, StateIdle, p.State())

	select {
	case ev := <-p.Events():
		t.Fatalf("unexpected transition %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPauseAndResume(t *testing.T) {
	p := New()
	defer p.Close()

	res := newFakeResource("alpha")
	p.Play(res)
	collect(t, p, 2)

	require.NoError(t, p.Pause())
	assert.Equal(t, StatePaused, p.State())
	assert.ErrorIs(t, p.Pause(), ErrNotPlaying)

	require.NoError(t, p.Resume())
	assert.Equal(t, StatePlaying, p.State())
	assert.ErrorIs(t, p.Resume(), ErrNotPaused)

	got := collect(t, p, 2)
	assert.Equal(t, StateChange{Old: StatePlaying, New: StatePaused}, got[0])
	assert.Equal(t, StateChange{Old: StatePaused, New: StatePlaying}, got[1])
}

func TestAutoPauseResumes(t *testing.T) {
	p := New()
	defer p.Close()

	res := newFakeResource("alpha")
	p.Play(res)
	collect(t, p, 2)

	require.NoError(t, p.AutoPause())
	assert.Equal(t, StateAutoPaused, p.State())
	require.NoError(t, p.Resume())
	assert.Equal(t, StatePlaying, p.State())
}

func TestPauseWithoutResource(t *testing.T) {
	p := New()
	defer p.Close()

	assert.ErrorIs(t, p.Pause(), ErrNoResource)
	assert.ErrorIs(t, p.Resume(), ErrNoResource)
}

func TestPlayDiscardsSupersededResource(t *testing.T) {
	p := New()
	defer p.Close()

	first := newFakeResource("alpha")
	p.Play(first)
	collect(t, p, 2)

	second := newFakeResource("beta")
	p.Play(second)

	// The superseded resource is closed and its completion never
	// reaches the stream.
	require.Eventually(t, first.isClosed, waitFor, tick)
	got := collect(t, p, 2)
	assert.Equal(t, StateChange{Old: StatePlaying, New: StateBuffering}, got[0])
	assert.Equal(t, StateChange{Old: StateBuffering, New: StatePlaying}, got[1])

	second.finish(nil)
	got = collect(t, p, 1)
	assert.Equal(t, StateChange{Old: StatePlaying, New: StateIdle}, got[0])
}

func TestStopReturnsToIdle(t *testing.T) {
	p := New()
	defer p.Close()

	res := newFakeResource("alpha")
	p.Play(res)
	collect(t, p, 2)

	p.Stop()
	assert.Equal(t, StateIdle, p.State())
	assert.True(t, res.isClosed())

	got := collect(t, p, 1)
	assert.Equal(t, StateChange{Old: StatePlaying, New: StateIdle}, got[0])

	// Stopping an idle player emits nothing.
	p.Stop()
	select {
	case ev := <-p.Events():
		t.Fatalf("unexpected transition %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateBuffering, "buffering"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{StateAutoPaused, "autopaused"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
