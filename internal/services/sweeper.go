package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eduflow-vn/quiz-engine/internal/repositories"
)

// ExpirySweeper periodically finalizes in-progress attempts that ran past
// their deadline without the owner ever coming back. It is a safety net;
// expired attempts are also finalized inline when their owner touches them.
type ExpirySweeper struct {
	repo      repositories.Repository
	grading   GradingService
	logger    *slog.Logger
	clock     Clock
	interval  time.Duration
	batchSize int

	cancel context.CancelFunc
	done   chan struct{}
}

func NewExpirySweeper(repo repositories.Repository, grading GradingService, logger *slog.Logger, clock Clock, interval time.Duration, batchSize int) *ExpirySweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpirySweeper{
		repo:      repo,
		grading:   grading,
		logger:    logger,
		clock:     clock,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (s *ExpirySweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (s *ExpirySweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// SweepOnce finalizes one batch of expired attempts. Attempts locked by a
// concurrent writer are skipped; the next pass picks them up.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) {
	attempts, err := s.repo.Attempt().ListExpiredInProgress(ctx, nil, s.clock.Now(), s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list expired attempts", "error", err)
		return
	}
	if len(attempts) == 0 {
		return
	}

	var finalized, skipped int
	for _, attempt := range attempts {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.grading.FinalizeExpired(ctx, attempt.ID); err != nil {
			if errors.Is(err, repositories.ErrBusy) {
				skipped++
				continue
			}
			s.logger.Error("Failed to finalize expired attempt",
				"attempt_id", attempt.ID, "error", err)
			continue
		}
		finalized++
	}

	s.logger.Info("Expiry sweep completed",
		"candidates", len(attempts),
		"finalized", finalized,
		"skipped_busy", skipped)
}
