// Package session provides the session service: the owning registry of
// live playback sessions.
package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"voxbox/internal/app/admission"
	"voxbox/internal/app/notify"
	"voxbox/internal/app/player"
	"voxbox/internal/app/queue"
	"voxbox/internal/app/voice"
	"voxbox/internal/domain/track"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Session is one playback context: a transport, a player and the queue
// controller driving them.
type Session struct {
	Key        string
	Transport  voice.Transport
	Player     *player.Player
	Controller *queue.Controller

	admit  *admission.Chain
	cancel context.CancelFunc
}

// Service owns the key → session map. It is the only component that
// inserts or removes sessions; controllers deregister themselves through
// the removal callback handed to them at creation.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      queue.Config
	notify   *notify.Manager
	admit    *admission.Chain
}

// NewService creates a service with the given per-controller config, the
// notice backend and the admission chain shared by all sessions. A nil
// chain admits everything.
func NewService(cfg queue.Config, n *notify.Manager, admit *admission.Chain) *Service {
	if admit == nil {
		admit = admission.NewChain()
	}
	return &Service{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		notify:   n,
		admit:    admit,
	}
}

// Create registers a new session under key and starts its event pump.
// An empty key gets a generated one.
func (s *Service) Create(key string, t voice.Transport, a queue.Audience) (*Session, error) {
	if key == "" {
		key = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; ok {
		return nil, ErrSessionExists
	}

	p := player.New()
	ctrl := queue.New(s.cfg, p, t, s.notify, a, func() error {
		return s.Remove(key)
	})

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		Key:        key,
		Transport:  t,
		Player:     p,
		Controller: ctrl,
		admit:      s.admit,
		cancel:     cancel,
	}
	s.sessions[key] = sess

	go sess.pump(ctx)

	zlog.Info().Msgf("session created: key=%s", key)
	return sess, nil
}

// Lookup returns the session registered under key.
func (s *Service) Lookup(key string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	return sess, ok
}

// Remove deregisters a session and tears it down.
func (s *Service) Remove(key string) error {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	if ok {
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "key %s", key)
	}

	sess.close()
	zlog.Info().Msgf("session removed: key=%s", key)
	return nil
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close tears down all sessions.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

// Enqueue runs the admission chain over the given items and appends the
// accepted ones to the session's queue. Rejections are returned with the
// check code that produced them.
func (sess *Session) Enqueue(ctx context.Context, items ...queue.Item) (int, []admission.Result) {
	queued := make([]track.Track, 0, len(sess.Controller.Items()))
	for _, it := range sess.Controller.Items() {
		queued = append(queued, it.Track())
	}

	var (
		accepted []queue.Item
		rejected []admission.Result
	)
	for _, it := range items {
		result := sess.admit.Execute(ctx, it.Track(), queued)
		if !result.Accepted {
			zlog.Info().Msgf("session %s: track rejected: code=%s track=%s", sess.Key, result.Code, it.Track().Display())
			rejected = append(rejected, result)
			continue
		}
		accepted = append(accepted, it)
		// Items admitted in this batch count against later candidates.
		queued = append(queued, it.Track())
	}

	if len(accepted) > 0 {
		sess.Controller.Enqueue(accepted...)
	}
	return len(accepted), rejected
}

func (sess *Session) close() {
	sess.cancel()
	sess.Controller.Shutdown()
	sess.Player.Close()
}

// pump forwards transport and player events to the controller's handler
// entry points. Per-source ordering is the channel's; no ordering is
// guaranteed between the two sources.
func (sess *Session) pump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session pump panicked: key=%s err=%v", sess.Key, r)
			zlog.Info().Msgf("restarting session pump: key=%s", sess.Key)
			go sess.pump(ctx)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sess.Player.Events():
			if !ok {
				return
			}
			sess.Controller.HandlePlayerState(ev)
		case err, ok := <-sess.Player.Errors():
			if !ok {
				return
			}
			sess.Controller.HandlePlayerError(err)
		case ev, ok := <-sess.Transport.Events():
			if !ok {
				return
			}
			sess.Controller.HandleTransportState(ev)
		}
	}
}
