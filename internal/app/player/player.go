package player

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"voxbox/internal/domain/track"
)

// Errors
var (
	ErrNoResource = errors.New("no resource loaded")
	ErrNotPlaying = errors.New("not playing")
	ErrNotPaused  = errors.New("not paused")
)

// Resource is a single-use playable handle derived from exactly one item.
// Start begins streaming and returns once audio is audibly flowing; Wait
// blocks until the stream ends. A resource is never reused after Close.
type Resource interface {
	Track() track.Track
	// SetVolumeLogarithmic sets the gain from a 0..1 fraction on a
	// logarithmic loudness scale.
	SetVolumeLogarithmic(fraction float64)
	Start(ctx context.Context) error
	Wait() error
	Close() error
}

// Player drives one Resource at a time and reports transitions on its
// event stream. Commands and stream completions serialize on the mutex;
// a generation counter discards completions of a superseded resource.
type Player struct {
	mu      sync.Mutex
	state   State
	current Resource
	gen     uint64
	cancel  context.CancelFunc

	events chan StateChange
	errs   chan error

	ctx       context.Context
	ctxCancel context.CancelFunc
}

// New creates a player in the Idle state.
func New() *Player {
	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		state:     StateIdle,
		events:    make(chan StateChange, 16),
		errs:      make(chan error, 4),
		ctx:       ctx,
		ctxCancel: cancel,
	}
}

// Events returns the state-change stream.
func (p *Player) Events() <-chan StateChange {
	return p.events
}

// Errors returns the playback error stream.
func (p *Player) Errors() <-chan error {
	return p.errs
}

// State returns the current player state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns the resource currently loaded, nil when idle.
func (p *Player) Current() Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Play loads a resource and starts streaming it. Any resource already in
// the slot is discarded without emitting its completion.
func (p *Player) Play(res Resource) {
	p.mu.Lock()

	p.discardLocked()

	p.gen++
	gen := p.gen
	p.current = res
	ctx, cancel := context.WithCancel(p.ctx)
	p.cancel = cancel
	p.setStateLocked(StateBuffering)
	p.mu.Unlock()

	go p.run(ctx, gen, res)
}

// Stop discards the current resource and returns the player to Idle.
// A no-op when already idle.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateIdle {
		return
	}
	p.discardLocked()
	p.setStateLocked(StateIdle)
}

// Pause pauses an actively playing resource.
func (p *Player) Pause() error {
	return p.pauseAs(StatePaused)
}

// AutoPause parks the player while the transport cannot accept audio.
func (p *Player) AutoPause() error {
	return p.pauseAs(StateAutoPaused)
}

func (p *Player) pauseAs(to State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return ErrNoResource
	}
	if p.state != StatePlaying {
		return ErrNotPlaying
	}
	p.setStateLocked(to)
	return nil
}

// Resume returns a paused or auto-paused player to Playing.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return ErrNoResource
	}
	if p.state != StatePaused && p.state != StateAutoPaused {
		return ErrNotPaused
	}
	p.setStateLocked(StatePlaying)
	return nil
}

// Close releases the player. The event and error streams are closed.
func (p *Player) Close() {
	p.mu.Lock()
	p.discardLocked()
	p.state = StateIdle
	p.mu.Unlock()

	p.ctxCancel()
	close(p.events)
	close(p.errs)
}

// run drives a single resource through its lifetime.
func (p *Player) run(ctx context.Context, gen uint64, res Resource) {
	err := res.Start(ctx)

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		_ = res.Close()
		return
	}
	if err != nil {
		// A failed resource surfaces on the error stream only; the
		// state snaps back to Idle without a transition event so the
		// failure is not also observed as a finished track.
		p.current = nil
		p.cancel = nil
		p.state = StateIdle
		p.mu.Unlock()
		_ = res.Close()
		p.sendError(errors.Wrap(err, "start resource"))
		return
	}
	p.setStateLocked(StatePlaying)
	p.mu.Unlock()

	err = res.Wait()

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		_ = res.Close()
		return
	}
	p.current = nil
	p.cancel = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		p.state = StateIdle
		p.mu.Unlock()
		_ = res.Close()
		p.sendError(errors.Wrap(err, "stream resource"))
		return
	}
	p.setStateLocked(StateIdle)
	p.mu.Unlock()
	_ = res.Close()
}

// discardLocked invalidates the in-flight resource, if any. The run
// goroutine observes the bumped generation and exits silently.
func (p *Player) discardLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.current != nil {
		_ = p.current.Close()
		p.current = nil
	}
	p.gen++
}

func (p *Player) setStateLocked(to State) {
	if p.state == to {
		return
	}
	change := StateChange{Old: p.state, New: to}
	p.state = to

	select {
	case p.events <- change:
	case <-p.ctx.Done():
	default:
		zlog.Warn().Msgf("player: event stream full, dropping transition %s -> %s", change.Old, change.New)
	}
}

func (p *Player) sendError(err error) {
	select {
	case p.errs <- err:
	case <-p.ctx.Done():
	default:
		zlog.Warn().Msgf("player: error stream full, dropping: %v", err)
	}
}
