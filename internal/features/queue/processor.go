package queue

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	common_models "go-ops/internal/common/models"
	"go-ops/internal/features/connector"
)

// run drains a queue's draft lines through the connector writer. It owns the
// whole lifecycle of one processing pass: claim, write, record, finalize.
// Only store errors or context cancellation end the pass early; line-level
// sync failures are recorded as data and the pass keeps going.
func (s *QueueServiceImpl) run(ctx context.Context, q *Queue) {
	logger := s.Logger.With(
		zap.String("queue_id", q.ID.Hex()),
		zap.String("queue", q.Name),
		zap.Int("run", q.ProcessCount),
	)
	logger.Info("queue run started")

	writer, err := s.Writers.Resolve(ctx, q.TenantID, q.ConnectorID)
	if err != nil {
		logger.Error("could not resolve connector writer", zap.Error(err))
		s.logActivity(ctx, q, nil, common_models.ActivityRunFinished, common_models.ActivityStatusFailed,
			fmt.Sprintf("Run aborted: %v", err), nil)
		if endErr := s.QueueRepo.EndProcessing(context.Background(), q.ID, QueueDraft); endErr != nil {
			logger.Error("failed to release processing guard", zap.Error(endErr))
		}
		return
	}
	if closer, ok := writer.(io.Closer); ok {
		defer closer.Close()
	}

	var done, failed, inBatch int
	interrupted := false

	for {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		line, err := s.LineRepo.ClaimNext(ctx, q.ID)
		if err != nil {
			logger.Error("claim failed, aborting run", zap.Error(err))
			interrupted = true
			break
		}
		if line == nil {
			break
		}

		// Re-attempts wait out a growing backoff before touching the target
		// again.
		if line.ProcessCount > 1 {
			if !sleepCtx(ctx, q.Config.Backoff(line.ProcessCount-1)) {
				interrupted = true
				break
			}
		}

		if s.processLine(ctx, q, writer, line, logger) {
			done++
		} else {
			failed++
		}

		inBatch++
		if inBatch >= q.Config.BatchSize {
			inBatch = 0
			if _, err := s.QueueRepo.RefreshCounts(ctx, q.ID); err != nil {
				logger.Error("failed to refresh counts", zap.Error(err))
			}
			if !sleepCtx(ctx, time.Duration(q.Config.BatchDelayMs)*time.Millisecond) {
				interrupted = true
				break
			}
		}
	}

	s.finalize(q, done, failed, interrupted, logger)
}

func (s *QueueServiceImpl) processLine(ctx context.Context, q *Queue, writer connector.Writer, line *Line, logger *zap.Logger) bool {
	rec := connector.Record{
		ExternalID: line.ExternalID,
		Data:       map[string]any(line.Payload),
	}

	res, err := writer.Upsert(ctx, rec)
	if err != nil {
		kind := connector.KindOf(err)
		if markErr := s.LineRepo.MarkFailed(ctx, line.ID, string(kind), err.Error()); markErr != nil {
			logger.Error("failed to record line failure", zap.Error(markErr))
		}
		s.logActivity(ctx, q, &line.ID, common_models.ActivityLineSync, common_models.ActivityStatusFailed,
			fmt.Sprintf("Line %s failed: %v", line.ExternalID, err),
			bson.M{"external_id": line.ExternalID, "error_kind": string(kind), "attempt": line.ProcessCount})
		logger.Warn("line sync failed",
			zap.String("external_id", line.ExternalID),
			zap.String("kind", string(kind)),
			zap.Int("attempt", line.ProcessCount),
			zap.Error(err))
		return false
	}

	if markErr := s.LineRepo.MarkDone(ctx, line.ID, res.InternalID, res.WasUpdate); markErr != nil {
		logger.Error("failed to record line success", zap.Error(markErr))
	}
	s.logActivity(ctx, q, &line.ID, common_models.ActivityLineSync, common_models.ActivityStatusSuccess,
		fmt.Sprintf("Line %s synced", line.ExternalID),
		bson.M{"external_id": line.ExternalID, "internal_id": res.InternalID, "was_update": res.WasUpdate})
	return true
}

// finalize settles the queue after a pass. Counter refresh first, then the
// coarse state from what the lines actually say, then the escalation check.
// Uses a background context so shutdown does not leave the guard held.
func (s *QueueServiceImpl) finalize(q *Queue, done, failed int, interrupted bool, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fresh, err := s.QueueRepo.RefreshCounts(ctx, q.ID)
	if err != nil {
		logger.Error("failed to refresh counts at end of run", zap.Error(err))
		fresh = q
	}

	var final QueueState
	switch {
	case interrupted, fresh.DraftCount > 0:
		// Unfinished work goes back to draft so the queue can be restarted.
		final = QueueDraft
	case fresh.FailedCount == 0:
		final = QueueDone
	case fresh.DoneCount+fresh.CancelledCount > 0:
		final = QueuePartial
	default:
		final = QueueFailed
	}

	if err := s.QueueRepo.EndProcessing(ctx, q.ID, final); err != nil {
		logger.Error("failed to release processing guard", zap.Error(err))
	}

	// The attention flag is raised once the queue's own run count exceeds
	// the retry budget, and only a manual operation clears it.
	if q.ProcessCount > q.Config.MaxRetries {
		reason := fmt.Sprintf("queue processed %d times with a retry budget of %d (%d lines failed)",
			q.ProcessCount, q.Config.MaxRetries, fresh.FailedCount)
		if err := s.QueueRepo.FlagActionRequired(ctx, q.ID, reason); err != nil {
			logger.Error("failed to flag queue for attention", zap.Error(err))
		}
	}

	s.logActivity(ctx, q, nil, common_models.ActivityRunFinished, common_models.ActivityStatusCompleted,
		fmt.Sprintf("Run finished: %d done, %d failed, state %s", done, failed, final),
		bson.M{"done": done, "failed": failed, "final_state": string(final), "interrupted": interrupted})

	logger.Info("queue run finished",
		zap.Int("done", done),
		zap.Int("failed", failed),
		zap.String("final_state", string(final)),
		zap.Bool("interrupted", interrupted))
}

// sleepCtx waits for d or until the context dies, reporting whether the full
// wait happened.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
