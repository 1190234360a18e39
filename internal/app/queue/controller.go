// Package queue provides the per-session playback queue controller.
//
// The controller owns the ordered item list and drives a single player,
// reacting to three event sources: transport state changes, player state
// changes, and its own timers. Handler entry points and commands serialize
// on one mutex; the creation lock and the ready-watch guard are the only
// protections spanning an asynchronous wait.
package queue

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"voxbox/internal/app/notify"
	"voxbox/internal/app/player"
	"voxbox/internal/app/voice"
	"voxbox/internal/domain/track"
)

// Item is one entry of the queue: a logical track that can open a
// single-use playable resource.
type Item interface {
	Track() track.Track
	Open(ctx context.Context) (player.Resource, error)
}

// Audience reports how many humans are listening on the session's
// channel, the controller itself excluded.
type Audience interface {
	ListenerCount() int
}

// Config holds controller configuration, read once at construction.
type Config struct {
	DefaultVolume  int           // Initial volume percentage
	StayDuration   time.Duration // Idle time before the session shuts down
	PruneDelay     time.Duration // Lifetime of now-playing notices in pruning mode
	ResolveRetries int           // Open attempts per head item before it is dropped
	ResolveBackoff time.Duration // Pause between open attempts
	RejoinCeiling  int           // Rejoin attempts before the transport is abandoned
	RejoinBackoff  time.Duration // Backoff step, scaled by the attempt counter
	ReadyTimeout   time.Duration // Bound on waiting for the transport to reach Ready
}

// Controller sequences items through the player for one session.
type Controller struct {
	mu sync.Mutex

	items   []Item
	loop    bool
	muted   bool
	pruning bool
	volume  int

	// creating is the creation lock: held from taking the head item
	// until the produced resource has been handed to the player.
	creating     bool
	resolveFails int

	// idleTimer is non-nil only while an idle shutdown is pending.
	idleTimer *time.Timer

	// closed is set by Shutdown; late events must not revive timers or
	// playback on a torn-down controller.
	closed bool

	current player.Resource

	readyWatch bool

	player    *player.Player
	transport voice.Transport
	notify    *notify.Manager
	audience  Audience

	remove     func() error
	removeOnce sync.Once

	cfg Config
}

// New creates a controller. remove deregisters the session from its
// registry; the controller invokes it at most once.
func New(cfg Config, p *player.Player, t voice.Transport, n *notify.Manager, a Audience, remove func() error) *Controller {
	return &Controller{
		volume:    cfg.DefaultVolume,
		player:    p,
		transport: t,
		notify:    n,
		audience:  a,
		remove:    remove,
		cfg:       cfg,
	}
}

// Enqueue appends items to the tail of the queue and restarts sequencing.
// Calling with no items still cancels a pending idle shutdown and, if the
// player is idle, re-attempts playback. It returns once a production
// attempt has been initiated, not once playback audibly starts.
func (c *Controller) Enqueue(items ...Item) {
	c.mu.Lock()
	c.cancelIdleLocked()
	c.items = append(c.items, items...)
	c.mu.Unlock()

	c.processQueue()
}

// Stop clears the queue, halts the player and schedules the idle
// shutdown. At most one idle timer is outstanding regardless of how often
// Stop is called.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.items = nil
	c.loop = false
	c.current = nil
	c.resolveFails = 0
	c.player.Stop()

	if !c.pruning {
		go c.notify.Send("Queue ended.")
	}

	if c.idleTimer != nil {
		return
	}
	c.idleTimer = time.AfterFunc(c.cfg.StayDuration, c.onIdleExpired)
}

// processQueue is the sequencing algorithm: it takes the head item,
// produces a resource from it and hands it to the player. A no-op while
// the creation lock is held or the player is busy.
func (c *Controller) processQueue() {
	c.mu.Lock()
	if c.closed || c.creating || c.player.State() != player.StateIdle {
		c.mu.Unlock()
		return
	}
	if len(c.items) == 0 || c.audience.ListenerCount() == 0 {
		c.mu.Unlock()
		c.Stop()
		return
	}

	c.creating = true
	head := c.items[0]
	c.mu.Unlock()

	go c.startHead(head)
}

// startHead produces a resource from the head item and starts it. The
// creation lock is released unconditionally, on success and on failure.
func (c *Controller) startHead(head Item) {
	res, err := head.Open(context.Background())

	if err == nil {
		c.mu.Lock()
		c.resolveFails = 0
		c.current = res
		c.player.Play(res)
		c.applyVolumeLocked(res)
		c.creating = false
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.creating = false
	if len(c.items) == 0 || c.items[0] != head {
		// The queue was cleared or rearranged while the open was in
		// flight; the failure counts against nothing.
		c.mu.Unlock()
		zlog.Debug().Msgf("queue: discarding open failure for dequeued %s: %v", head.Track().Display(), err)
		c.processQueue()
		return
	}
	c.resolveFails++
	fails := c.resolveFails
	dropped := fails >= c.cfg.ResolveRetries
	if dropped {
		c.items = c.items[1:]
		c.resolveFails = 0
	}
	c.mu.Unlock()

	if dropped {
		zlog.Error().Msgf("queue: dropping %s after %d failed attempts: %v", head.Track().Display(), fails, err)
	} else {
		zlog.Error().Msgf("queue: open %s failed (attempt %d/%d): %v", head.Track().Display(), fails, c.cfg.ResolveRetries, err)
		if c.cfg.ResolveBackoff > 0 {
			time.Sleep(c.cfg.ResolveBackoff)
		}
	}
	c.processQueue()
}

// HandlePlayerState is the player-stream entry point.
func (c *Controller) HandlePlayerState(change player.StateChange) {
	switch {
	case change.Old != player.StateIdle && change.New == player.StateIdle:
		c.onTrackEnd()
	case change.Old == player.StateBuffering && change.New == player.StatePlaying:
		c.onTrackStart()
	}
}

// HandlePlayerError is the player error-stream entry point. A playback
// error is a forced skip: advance past the head and resume sequencing.
func (c *Controller) HandlePlayerError(err error) {
	zlog.Error().Msgf("queue: player error, skipping track: %v", err)

	c.mu.Lock()
	c.advanceLocked()
	c.mu.Unlock()

	c.processQueue()
}

// onTrackEnd runs when a track finished or was force-stopped.
func (c *Controller) onTrackEnd() {
	c.mu.Lock()
	c.advanceLocked()
	hasItems := len(c.items) > 0
	hasResource := c.current != nil
	c.mu.Unlock()

	if hasItems && hasResource {
		c.processQueue()
	} else {
		c.Stop()
	}
}

// onTrackStart announces the track that just became audible. In pruning
// mode the notice is deleted again after a short delay.
func (c *Controller) onTrackStart() {
	c.mu.Lock()
	res := c.current
	pruning := c.pruning
	c.mu.Unlock()

	if res == nil {
		return
	}
	text := res.Track().Announcement()

	go func() {
		id := c.notify.Send(text)
		if pruning {
			c.notify.DeleteAfter(id, c.cfg.PruneDelay)
		}
	}()
}

// advanceLocked moves past the head item: rotated to the tail when
// looping, discarded otherwise.
func (c *Controller) advanceLocked() {
	if len(c.items) == 0 {
		return
	}
	if c.loop {
		head := c.items[0]
		c.items = append(c.items[1:], head)
	} else {
		c.items = c.items[1:]
	}
}

// HandleTransportState is the transport-stream entry point.
func (c *Controller) HandleTransportState(change voice.StateChange) {
	switch change.New {
	case voice.StateDisconnected:
		c.onDisconnected(change.Code)
	case voice.StateReady:
		// Intentionally nothing. The system this replaces deregistered
		// the session here, evicting it the moment it finished
		// connecting; that behavior is a defect and is not kept.
	case voice.StateConnecting, voice.StateSignalling:
		c.onReconnecting()
	}
}

// onDisconnected applies the reconnect policy: a fatal close code tears
// the session down immediately, otherwise rejoin with graduated backoff
// until the attempt ceiling is reached.
func (c *Controller) onDisconnected(code int) {
	if code == voice.CloseCodeSessionInvalid {
		if err := c.deregister(); err != nil {
			zlog.Error().Msgf("queue: deregister after fatal close: %v", err)
			c.Stop()
		}
		return
	}

	attempts := c.transport.RejoinAttempts()
	if attempts >= c.cfg.RejoinCeiling {
		zlog.Warn().Msgf("queue: transport lost after %d rejoin attempts, tearing down", attempts)
		if err := c.transport.Destroy(); err != nil {
			zlog.Debug().Msgf("queue: destroy transport: %v", err)
		}
		if err := c.deregister(); err != nil {
			zlog.Error().Msgf("queue: deregister after rejoin ceiling: %v", err)
		}
		return
	}

	delay := c.rejoinDelay(attempts)
	zlog.Info().Msgf("queue: transport disconnected, rejoining in %s (attempt %d/%d)", delay, attempts+1, c.cfg.RejoinCeiling)
	time.AfterFunc(delay, func() {
		if err := c.transport.Rejoin(); err != nil {
			zlog.Error().Msgf("queue: rejoin failed: %v", err)
		}
	})
}

// rejoinDelay grades the backoff by the attempt counter: one step for
// the first retry, two for the second, and so on.
func (c *Controller) rejoinDelay(attempt int) time.Duration {
	return time.Duration(attempt+1) * c.cfg.RejoinBackoff
}

// onReconnecting watches a connecting transport until it reaches Ready,
// bounded by the configured timeout. One watch at a time.
func (c *Controller) onReconnecting() {
	c.mu.Lock()
	if c.readyWatch {
		c.mu.Unlock()
		return
	}
	c.readyWatch = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.readyWatch = false
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReadyTimeout)
		defer cancel()

		if err := c.transport.AwaitReady(ctx); err != nil {
			zlog.Warn().Msgf("queue: transport did not become ready: %v", err)
			if c.transport.State() != voice.StateDestroyed {
				if derr := c.transport.Destroy(); derr != nil {
					zlog.Debug().Msgf("queue: destroy transport: %v", derr)
				}
			}
		}
	}()
}

// onIdleExpired runs when the idle timer fires. The player and queue are
// re-checked here: playback may have resumed after the timer was set, in
// which case the session stays registered.
func (c *Controller) onIdleExpired() {
	if c.transport.State() != voice.StateDestroyed {
		if err := c.transport.Destroy(); err != nil {
			zlog.Debug().Msgf("queue: destroy transport: %v", err)
		}
	}

	c.mu.Lock()
	c.idleTimer = nil
	playing := c.player.State() == player.StatePlaying
	empty := len(c.items) == 0
	c.mu.Unlock()

	if playing || !empty {
		return
	}

	if err := c.deregister(); err != nil {
		zlog.Error().Msgf("queue: deregister after idle: %v", err)
	}
	go c.notify.Send("Left the channel due to inactivity.")
}

// deregister removes the session from its registry. Subsequent calls are
// no-ops.
func (c *Controller) deregister() error {
	var err error
	c.removeOnce.Do(func() {
		err = c.remove()
	})
	return err
}

func (c *Controller) cancelIdleLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

// applyVolumeLocked pushes the effective gain to a resource. Muted
// sessions keep their configured volume but play at zero gain.
func (c *Controller) applyVolumeLocked(res player.Resource) {
	gain := float64(c.volume) / 100
	if c.muted {
		gain = 0
	}
	res.SetVolumeLogarithmic(gain)
}

// Shutdown stops the player, clears pending timers and puts the
// controller in its terminal state; events arriving afterwards are
// ignored. It does not deregister; callers owning the registry entry
// remove it themselves.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.cancelIdleLocked()
	c.items = nil
	c.current = nil
	c.resolveFails = 0
	c.player.Stop()
}

// Items returns a snapshot of the queued items in play order.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Loop reports whether finished items return to the tail.
func (c *Controller) Loop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}

// SetLoop toggles rotate-on-finish.
func (c *Controller) SetLoop(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = on
}

// Muted reports whether playback gain is forced to zero.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// SetMuted toggles mute and reapplies gain to the active resource.
func (c *Controller) SetMuted(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.muted = on
	if c.current != nil {
		c.applyVolumeLocked(c.current)
	}
}

// Pruning reports whether ephemeral notices are auto-deleted.
func (c *Controller) Pruning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruning
}

// SetPruning toggles auto-deletion of ephemeral notices.
func (c *Controller) SetPruning(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruning = on
}

// Volume returns the configured volume percentage.
func (c *Controller) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SetVolume sets the volume percentage and reapplies it to the active
// resource. Values are clamped to 0..200.
func (c *Controller) SetVolume(pct int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pct < 0 {
		pct = 0
	}
	if pct > 200 {
		pct = 200
	}
	c.volume = pct
	if c.current != nil {
		c.applyVolumeLocked(c.current)
	}
}
