package attempt

import (
	"context"
	"time"

	"quizsystem/internal/quiz"

	"github.com/rs/zerolog"
)

type expirer interface {
	InProgressAttempts(ctx context.Context) ([]quiz.Attempt, error)
	ExpireIfTimedOut(ctx context.Context, attemptID string) (bool, error)
}

// Sweeper periodically grades open attempts whose deadline has passed, so
// abandoned attempts do not stay IN_PROGRESS until their owner returns.
// It runs outside the request path and uses the same expiry logic.
type Sweeper struct {
	svc      expirer
	interval time.Duration
	log      zerolog.Logger
}

func NewSweeper(svc expirer, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("attempt expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("attempt expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("attempt expiry sweep failed")
			}
		}
	}
}

// SweepOnce expires every timed-out open attempt and returns how many it
// closed. Failures on single attempts are logged and skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	open, err := s.svc.InProgressAttempts(ctx)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, a := range open {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		closed, err := s.svc.ExpireIfTimedOut(ctx, a.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("attempt_id", a.ID).Msg("expire attempt failed")
			continue
		}
		if closed {
			expired++
		}
	}
	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("expired timed-out attempts")
	}
	return expired, nil
}
