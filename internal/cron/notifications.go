package cron

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"bizdesk/internal/models"
	"bizdesk/internal/notify"
	"bizdesk/internal/pkg/utils"
)

const (
	notifyBatchSize  = 50
	notifyBaseDelay  = 30 * time.Second
	notifyMaxBackoff = time.Hour
)

// DeliverNotifications hands queued job-created events to the hook. Failed
// deliveries are retried with exponential backoff until NOTIFY_MAX_ATTEMPTS.
func (s *Scheduler) DeliverNotifications(ctx context.Context) (delivered, failed int) {
	defer s.recoverFromPanic("deliverNotifications")

	now := s.now().UTC()
	jobs, err := s.queue.ListReady(ctx, models.CronJobKindJobCreated, now, notifyBatchSize)
	if err != nil {
		s.logger.Error("list queued notifications failed", zap.Error(err))
		return 0, 0
	}

	for i := range jobs {
		job := &jobs[i]

		var ev notify.JobCreatedEvent
		if err := json.Unmarshal([]byte(job.Payload), &ev); err != nil {
			_ = s.queue.MarkFailed(ctx, job, utils.TrimErr("invalid payload: "+err.Error()), now, 0)
			failed++
			continue
		}

		if err := s.hook.JobCreated(ctx, ev); err != nil {
			retryAt := now.Add(backoff(job.Attempts)).Truncate(time.Second)
			if merr := s.queue.MarkFailed(ctx, job, utils.TrimErr(err.Error()), retryAt, s.cfg.Notify.MaxAttempts); merr != nil {
				s.logger.Error("record notification failure", zap.Uint("id", job.ID), zap.Error(merr))
			}
			s.logger.Warn("notification delivery failed",
				zap.Uint("id", job.ID),
				zap.String("job_id", ev.JobID),
				zap.Int("attempt", job.Attempts+1),
				zap.Error(err),
			)
			failed++
			continue
		}

		if err := s.queue.MarkDone(ctx, job.ID); err != nil {
			s.logger.Error("mark notification done", zap.Uint("id", job.ID), zap.Error(err))
			continue
		}
		delivered++
	}

	if delivered+failed > 0 {
		s.logger.Info("notifications processed", zap.Int("delivered", delivered), zap.Int("failed", failed))
	}
	return delivered, failed
}

func backoff(attempts int) time.Duration {
	d := notifyBaseDelay
	for i := 0; i < attempts && d < notifyMaxBackoff; i++ {
		d *= 2
	}
	if d > notifyMaxBackoff {
		d = notifyMaxBackoff
	}
	return d
}
