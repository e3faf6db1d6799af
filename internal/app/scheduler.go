package app

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/service"
	"go.uber.org/zap"
)

type calendarSyncer interface {
	SyncAll(ctx context.Context, from, to time.Time) (*service.SyncSummary, error)
}

// Scheduler runs the periodic calendar sync.
type Scheduler struct {
	syncer   calendarSyncer
	interval time.Duration
	horizon  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}
}

func NewScheduler(syncer calendarSyncer, interval, horizon time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		horizon:  horizon,
		now:      time.Now,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start syncs once right away and then every interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("interval", s.interval),
		zap.Duration("horizon", s.horizon),
	)
	go s.runCalendarSyncTask(ctx)
}

// Stop ends the task and waits for a running sync to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	close(s.stopChan)
	<-s.done
}

func (s *Scheduler) runCalendarSyncTask(ctx context.Context) {
	defer close(s.done)

	s.syncCalendars(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.syncCalendars(ctx)
		case <-s.stopChan:
			s.logger.Info("Calendar sync task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Calendar sync task cancelled")
			return
		}
	}
}

func (s *Scheduler) syncCalendars(ctx context.Context) {
	from := s.now()
	summary, err := s.syncer.SyncAll(ctx, from, from.Add(s.horizon))
	if err != nil {
		s.logger.Error("Calendar sync failed", zap.Error(err))
		return
	}

	s.logger.Info("Calendar sync completed",
		zap.Int("tutors", summary.Tutors),
		zap.Int("failed", summary.Failed),
	)
}
