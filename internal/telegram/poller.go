package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// UpdateHandler consumes inbound updates one at a time. The poller
// dispatches serially, so a participant's events are always processed in
// arrival order.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update Update) error
}

// UpdateSource is the polling capability the pump consumes; *Client
// satisfies it.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	AnswerCallbackQuery(ctx context.Context, callbackID string)
}

// Poller drives the long-poll loop against the Bot API and feeds the
// handler. A transport failure never exits the process: the loop sleeps
// a fixed backoff and resumes in place.
type Poller struct {
	source  UpdateSource
	handler UpdateHandler
	logger  zerolog.Logger

	timeout time.Duration
	backoff time.Duration
}

// NewPoller creates an update pump.
func NewPoller(source UpdateSource, handler UpdateHandler, timeout, backoff time.Duration, logger zerolog.Logger) *Poller {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if backoff <= 0 {
		backoff = 15 * time.Second
	}
	return &Poller{
		source:  source,
		handler: handler,
		logger:  logger.With().Str("component", "poller").Logger(),
		timeout: timeout,
		backoff: backoff,
	}
}

// Run blocks until ctx is canceled. Poll failures restart the loop after
// a fixed backoff; the restart is a plain iteration, never recursion, so
// repeated failure cannot grow the stack.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64

	p.logger.Info().Dur("timeout", p.timeout).Msg("update pump starting")

	for {
		if ctx.Err() != nil {
			p.logger.Info().Msg("update pump stopped")
			return nil
		}

		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				p.logger.Info().Msg("update pump stopped")
				return nil
			}
			p.logger.Error().Err(err).Dur("backoff", p.backoff).Msg("poll failed, restarting after backoff")
			if !sleep(ctx, p.backoff) {
				return nil
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1

			// Ack button presses regardless of handler outcome so the
			// client spinner clears.
			if update.CallbackQuery != nil {
				p.source.AnswerCallbackQuery(ctx, update.CallbackQuery.ID)
			}

			if err := p.handler.HandleUpdate(ctx, update); err != nil {
				p.logger.Error().
					Err(err).
					Int64("update_id", update.UpdateID).
					Msg("update handling failed")
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
