package queue

import (
	"context"
	"strconv"
	"sync"

	"voxbox/internal/app/player"
	"voxbox/internal/app/voice"
	"voxbox/internal/domain/track"
)

// stubAudience reports a fixed listener count.
type stubAudience int

func (a stubAudience) ListenerCount() int { return int(a) }

// stubResource is a controllable player.Resource: Start succeeds
// immediately and Wait blocks until finish is called.
type stubResource struct {
	meta track.Track

	release   chan error
	closed    chan struct{}
	closeOnce sync.Once
	finOnce   sync.Once

	mu   sync.Mutex
	gain float64
}

func newStubResource(meta track.Track) *stubResource {
	return &stubResource{
		meta:    meta,
		release: make(chan error, 1),
		closed:  make(chan struct{}),
		gain:    1,
	}
}

func (r *stubResource) Track() track.Track { return r.meta }

func (r *stubResource) SetVolumeLogarithmic(fraction float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gain = fraction
}

func (r *stubResource) Gain() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gain
}

func (r *stubResource) Start(ctx context.Context) error { return nil }

func (r *stubResource) Wait() error {
	select {
	case err := <-r.release:
		return err
	case <-r.closed:
		return context.Canceled
	}
}

func (r *stubResource) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

// finish ends the stream with the given terminal error.
func (r *stubResource) finish(err error) {
	r.finOnce.Do(func() { r.release <- err })
}

// stubItem is a controllable Item. Open can fail a fixed number of
// times, block until released, and records every produced resource.
type stubItem struct {
	meta track.Track

	mu        sync.Mutex
	openErr   error
	failFirst int // fail this many opens; 0 with openErr set means fail always
	block     chan struct{}
	opened    int
	inflight  int
	maxFlight int
	resources []*stubResource
}

func newStubItem(title string) *stubItem {
	return &stubItem{meta: track.Track{Title: title, Path: title + ".mp3"}}
}

func (i *stubItem) Track() track.Track { return i.meta }

func (i *stubItem) Open(ctx context.Context) (player.Resource, error) {
	i.mu.Lock()
	i.opened++
	i.inflight++
	if i.inflight > i.maxFlight {
		i.maxFlight = i.inflight
	}
	opened := i.opened
	block := i.block
	fail := i.openErr != nil && (i.failFirst == 0 || opened <= i.failFirst)
	err := i.openErr
	i.mu.Unlock()

	if block != nil {
		<-block
	}

	defer func() {
		i.mu.Lock()
		i.inflight--
		i.mu.Unlock()
	}()

	if fail {
		return nil, err
	}

	res := newStubResource(i.meta)
	i.mu.Lock()
	i.resources = append(i.resources, res)
	i.mu.Unlock()
	return res, nil
}

func (i *stubItem) openCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.opened
}

func (i *stubItem) maxInflight() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.maxFlight
}

func (i *stubItem) lastResource() *stubResource {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.resources) == 0 {
		return nil
	}
	return i.resources[len(i.resources)-1]
}

// stubTransport is a controllable voice.Transport.
type stubTransport struct {
	mu           sync.Mutex
	state        voice.State
	attempts     int
	rejoins      int
	destroys     int
	rejoinErr    error
	destroyErr   error
	awaitBlocks  bool          // block AwaitReady until awaitRelease or ctx
	awaitRelease chan struct{} // released awaits return nil
	awaits       int
	awaitFlight  int
	awaitMax     int

	events chan voice.StateChange
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		state:  voice.StateReady,
		events: make(chan voice.StateChange, 16),
	}
}

func (t *stubTransport) State() voice.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *stubTransport) setState(s voice.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *stubTransport) RejoinAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *stubTransport) setAttempts(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts = n
}

func (t *stubTransport) Rejoin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejoins++
	return t.rejoinErr
}

func (t *stubTransport) rejoinCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rejoins
}

func (t *stubTransport) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroys++
	t.state = voice.StateDestroyed
	return t.destroyErr
}

func (t *stubTransport) destroyCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroys
}

func (t *stubTransport) AwaitReady(ctx context.Context) error {
	t.mu.Lock()
	t.awaits++
	t.awaitFlight++
	if t.awaitFlight > t.awaitMax {
		t.awaitMax = t.awaitFlight
	}
	blocks := t.awaitBlocks
	release := t.awaitRelease
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.awaitFlight--
		t.mu.Unlock()
	}()

	if !blocks {
		return nil
	}
	if release == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *stubTransport) awaitCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.awaits
}

func (t *stubTransport) Events() <-chan voice.StateChange { return t.events }

// emit pushes a transition onto the transport's event stream.
func (t *stubTransport) emit(old, next voice.State, code int) {
	t.setState(next)
	t.events <- voice.StateChange{Old: old, New: next, Code: code}
}

// recordNotifier captures notices instead of delivering them.
type recordNotifier struct {
	mu      sync.Mutex
	nextID  int
	sent    []string
	deleted []string
	sendErr error
}

func (n *recordNotifier) Send(_ context.Context, text string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return "", n.sendErr
	}
	n.nextID++
	n.sent = append(n.sent, text)
	return strconv.Itoa(n.nextID), nil
}

func (n *recordNotifier) Delete(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, id)
	return nil
}

func (n *recordNotifier) sentTexts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *recordNotifier) deletedIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.deleted))
	copy(out, n.deleted)
	return out
}
