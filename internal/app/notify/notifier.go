// Package notify provides best-effort delivery of session notices.
//
// Every send and delete is fire-and-forget: failures are logged and never
// reach playback control flow.
package notify

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Notifier delivers one notice to wherever the session surfaces text
// (a chat channel, a webhook, a log). Send returns an opaque id usable
// with Delete; backends without deletable messages may return "".
type Notifier interface {
	Send(ctx context.Context, text string) (string, error)
	Delete(ctx context.Context, id string) error
}

const sendTimeout = 5 * time.Second

// Manager wraps a Notifier with the fire-and-forget contract.
type Manager struct {
	notifier Notifier
}

// NewManager creates a manager around the given backend.
func NewManager(n Notifier) *Manager {
	return &Manager{notifier: n}
}

// Send delivers a notice, logging on failure. The returned id is ""
// when delivery failed or the backend has no deletable messages.
func (m *Manager) Send(text string) string {
	if m == nil || m.notifier == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	id, err := m.notifier.Send(ctx, text)
	if err != nil {
		zlog.Error().Msgf("notify: send failed: %v", err)
		return ""
	}
	return id
}

// DeleteAfter deletes a previously sent notice after the given delay,
// suppressing any failure. Used by pruning mode.
func (m *Manager) DeleteAfter(id string, delay time.Duration) {
	if m == nil || m.notifier == nil || id == "" {
		return
	}

	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := m.notifier.Delete(ctx, id); err != nil {
			zlog.Debug().Msgf("notify: delete failed: id=%s err=%v", id, err)
		}
	})
}
