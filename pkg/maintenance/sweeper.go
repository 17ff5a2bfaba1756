// Package maintenance runs periodic expiry sweeps over sessions, one-time
// tokens and invitations.
//
// Expiry is always enforced at read time by the owning service; sweeps only
// keep the tables small and move lapsed invitations to their terminal
// state so that listings show them as expired.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/rowguard/pkg/observability"
)

// SessionSweeper deletes dead sessions
type SessionSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenSweeper deletes expired or used one-time tokens
type TokenSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// InvitationExpirer moves lapsed pending invitations to expired
type InvitationExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// Report counts the rows touched by one sweep
type Report struct {
	Sessions    int64
	Tokens      int64
	Invitations int64
}

// Sweeper runs the expiry sweeps, once or on a cron schedule
type Sweeper struct {
	sessions    SessionSweeper
	tokens      TokenSweeper
	invitations InvitationExpirer
	retention   time.Duration
	metrics     *observability.Metrics
	logger      *observability.Logger
	now         func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper creates a sweeper. Rows are deleted once they have been dead
// for longer than retention.
func NewSweeper(sessions SessionSweeper, tokens TokenSweeper, invitations InvitationExpirer, retention time.Duration, metrics *observability.Metrics, logger *observability.Logger) *Sweeper {
	if logger == nil {
		logger = observability.FromContext(context.Background())
	}
	return &Sweeper{
		sessions:    sessions,
		tokens:      tokens,
		invitations: invitations,
		retention:   retention,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// RunOnce performs every sweep. A failing sweep does not stop the others;
// the first error is returned alongside the partial report.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	var firstErr error
	cutoff := s.now().UTC().Add(-s.retention)

	sweep := func(entity string, fn func() (int64, error), dest *int64) {
		n, err := fn()
		if err != nil {
			s.logger.WithError(err).WithField("entity", entity).Error("Sweep failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("sweep %s: %w", entity, err)
			}
			return
		}
		*dest = n
		if s.metrics != nil && n > 0 {
			s.metrics.SweptTotal.WithLabelValues(entity).Add(float64(n))
		}
	}

	sweep("invitation", func() (int64, error) { return s.invitations.ExpireStale(ctx) }, &report.Invitations)
	sweep("session", func() (int64, error) { return s.sessions.DeleteExpired(ctx, cutoff) }, &report.Sessions)
	sweep("token", func() (int64, error) { return s.tokens.DeleteExpired(ctx, cutoff) }, &report.Tokens)

	s.logger.WithFields(map[string]interface{}{
		"sessions":    report.Sessions,
		"tokens":      report.Tokens,
		"invitations": report.Invitations,
	}).Info("Maintenance sweep completed")
	return report, firstErr
}

// Start schedules RunOnce. Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		defer observability.RecoverPanic(s.logger, "maintenance sweep")
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.WithField("schedule", schedule).Info("Maintenance sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("Maintenance sweeper stopped")
}
