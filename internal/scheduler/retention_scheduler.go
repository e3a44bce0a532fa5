package scheduler

import (
	"time"

	"github.com/minjcho/noteum-account/internal/app/repository"
	"github.com/minjcho/noteum-account/pkg/logger"
	"github.com/robfig/cron/v3"
)

// RetentionScheduler prunes dead recovery entries. The recovery core only
// ever tombstones entries (active=false); physically removing them after a
// grace period is this job's responsibility. Active rows are never touched.
type RetentionScheduler struct {
	cron         *cron.Cron
	recoveryRepo repository.RecoveryRepository
	grace        time.Duration
}

func NewRetentionScheduler(recoveryRepo repository.RecoveryRepository, grace time.Duration) *RetentionScheduler {
	return &RetentionScheduler{
		cron:         cron.New(),
		recoveryRepo: recoveryRepo,
		grace:        grace,
	}
}

// Start schedules the daily pruning run
func (s *RetentionScheduler) Start() error {
	// Daily at 04:00, when recovery traffic is lowest
	_, err := s.cron.AddFunc("0 4 * * *", func() {
		cutoff := time.Now().UTC().Add(-s.grace)

		count, err := s.recoveryRepo.DeleteDead(cutoff)
		if err != nil {
			logger.Error("Failed to prune dead recovery entries", err)
			return
		}

		logger.Info("Pruned dead recovery entries", map[string]interface{}{
			"count":  count,
			"cutoff": cutoff,
		})
	})
	if err != nil {
		logger.Error("Failed to add cron job for recovery retention", err)
		return err
	}

	s.cron.Start()
	logger.Info("Recovery retention scheduler started (daily at 4:00 AM)", map[string]interface{}{
		"grace": s.grace.String(),
	})

	return nil
}

// Stop stops the scheduler
func (s *RetentionScheduler) Stop() {
	logger.Info("Stopping recovery retention scheduler...")
	s.cron.Stop()
}
