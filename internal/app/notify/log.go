package notify

import (
	"context"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// LogNotifier writes notices to the application log. It is the default
// backend when no external delivery target is configured.
type LogNotifier struct{}

// Send logs the notice and returns a synthetic id.
func (LogNotifier) Send(_ context.Context, text string) (string, error) {
	id := uuid.New().String()
	zlog.Info().Msgf("notice: %s", text)
	return id, nil
}

// Delete is a no-op; log lines cannot be withdrawn.
func (LogNotifier) Delete(_ context.Context, _ string) error {
	return nil
}
