package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"go-ops/internal/config"
	"go-ops/internal/features/queue"
)

// JanitorService runs the two background chores: retention cleanup of
// terminal queues and reclaiming lines a dead worker left in processing.
type JanitorService interface {
	Start() error
	Stop()
	RunCleanup(ctx context.Context) (int64, error)
	RunReclaim(ctx context.Context) (int64, error)
}

type JanitorServiceImpl struct {
	Queues    queue.QueueService
	Config    *config.Config
	Logger    *zap.Logger
	scheduler *cron.Cron
}

func NewJanitorService(queues queue.QueueService, cfg *config.Config, logger *zap.Logger) JanitorService {
	return &JanitorServiceImpl{
		Queues: queues,
		Config: cfg,
		Logger: logger,
	}
}

func (s *JanitorServiceImpl) Start() error {
	s.scheduler = cron.New()

	if _, err := s.scheduler.AddFunc(s.Config.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.RunCleanup(ctx); err != nil {
			s.Logger.Error("scheduled cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.Config.CleanupSchedule, err)
	}

	if _, err := s.scheduler.AddFunc(s.Config.ReclaimSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.RunReclaim(ctx); err != nil {
			s.Logger.Error("scheduled reclaim failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid reclaim schedule %q: %w", s.Config.ReclaimSchedule, err)
	}

	s.scheduler.Start()
	s.Logger.Info("janitor scheduler started",
		zap.String("cleanup_schedule", s.Config.CleanupSchedule),
		zap.String("reclaim_schedule", s.Config.ReclaimSchedule))
	return nil
}

func (s *JanitorServiceImpl) Stop() {
	if s.scheduler != nil {
		ctx := s.scheduler.Stop()
		<-ctx.Done()
	}
}

func (s *JanitorServiceImpl) RunCleanup(ctx context.Context) (int64, error) {
	return s.Queues.Cleanup(ctx, s.Config.RetentionDays)
}

func (s *JanitorServiceImpl) RunReclaim(ctx context.Context) (int64, error) {
	return s.Queues.ReclaimStale(ctx, time.Duration(s.Config.StaleAfterMinutes)*time.Minute)
}
