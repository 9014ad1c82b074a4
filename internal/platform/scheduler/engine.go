// Package scheduler drives the periodic adherence work: expanding medication
// schedules into dated doses, firing pre-dose reminders, and escalating doses
// that went unanswered.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AdherenceService is the slice of the medication service the engine drives.
type AdherenceService interface {
	MaterializeAll(ctx context.Context, now time.Time) error
	RemindDue(ctx context.Context, now time.Time) error
	EscalateOverdue(ctx context.Context, now time.Time) error
}

type Config struct {
	MaterializeInterval time.Duration
	PollInterval        time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaterializeInterval: 24 * time.Hour,
		PollInterval:        time.Minute,
	}
}

type Engine struct {
	svc    AdherenceService
	clock  Clock
	cfg    Config
	logger zerolog.Logger
}

func NewEngine(svc AdherenceService, clock Clock, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.MaterializeInterval <= 0 {
		cfg.MaterializeInterval = 24 * time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Engine{svc: svc, clock: clock, cfg: cfg, logger: logger}
}

// Start runs the engine's loops until ctx is cancelled. It materializes once
// up front so a fresh deploy has doses to remind about, then keeps the
// horizon filled daily and polls reminders and escalations every interval.
// Call it in a goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.runMaterialize(ctx)

	materialize := e.clock.NewTicker(e.cfg.MaterializeInterval)
	defer materialize.Stop()
	poll := e.clock.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()

	e.logger.Info().
		Dur("materialize_interval", e.cfg.MaterializeInterval).
		Dur("poll_interval", e.cfg.PollInterval).
		Msg("adherence engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("adherence engine stopped")
			return
		case <-materialize.C():
			e.runMaterialize(ctx)
		case <-poll.C():
			e.runPoll(ctx)
		}
	}
}

func (e *Engine) runMaterialize(ctx context.Context) {
	if err := e.svc.MaterializeAll(ctx, e.clock.Now()); err != nil {
		e.logger.Error().Err(err).Msg("materialize run failed")
	}
}

func (e *Engine) runPoll(ctx context.Context) {
	now := e.clock.Now()
	if err := e.svc.RemindDue(ctx, now); err != nil {
		e.logger.Error().Err(err).Msg("reminder run failed")
	}
	if err := e.svc.EscalateOverdue(ctx, now); err != nil {
		e.logger.Error().Err(err).Msg("escalation run failed")
	}
}
