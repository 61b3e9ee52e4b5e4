/**
 * @description
 * Cron scheduler for the remittance-service's background jobs: warming the
 * FX rate cache for every corridor on a fixed schedule, and sweeping idle
 * wizard sessions so abandoned drafts are discarded.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	rates   *CachedRateLookup
	logger  *slog.Logger

	refreshSchedule string
	sweepSchedule   string
}

// NewScheduler creates a new scheduler instance. rates may be nil when no
// cache is configured; the refresh job is then skipped.
func NewScheduler(service *Service, rates *CachedRateLookup, logger *slog.Logger, refreshSchedule, sweepSchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:            c,
		service:         service,
		rates:           rates,
		logger:          logger,
		refreshSchedule: refreshSchedule,
		sweepSchedule:   sweepSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if s.rates != nil && s.refreshSchedule != "" {
		if _, err := s.cron.AddFunc(s.refreshSchedule, s.refreshRates); err != nil {
			s.logger.Error("failed to schedule fx refresh job", "error", err)
		} else {
			s.logger.Info("scheduled fx refresh job", "schedule", s.refreshSchedule)
		}
	}

	if s.sweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.sweepSchedule, s.sweepSessions); err != nil {
			s.logger.Error("failed to schedule session sweep job", "error", err)
		} else {
			s.logger.Info("scheduled session sweep job", "schedule", s.sweepSchedule)
		}
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// refreshRates re-fetches the rate for every corridor through the cached
// lookup, repopulating entries before their TTL lapses.
func (s *Scheduler) refreshRates() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	corridors, err := s.service.ListCorridors(ctx)
	if err != nil {
		s.logger.Error("fx refresh: corridor list failed", "error", err)
		return
	}
	for _, corridor := range corridors {
		if _, err := s.rates.Refresh(ctx, corridor); err != nil {
			s.logger.Warn("fx refresh: rate fetch failed", "corridor", corridor.Code, "error", err)
		}
	}
	s.logger.Info("fx refresh completed", "corridors", len(corridors))
}

func (s *Scheduler) sweepSessions() {
	if removed := s.service.SweepExpiredSessions(); removed > 0 {
		s.logger.Info("swept idle wizard sessions", "removed", removed)
	}
}
