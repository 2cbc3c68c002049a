package recurring

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bizdesk/internal/lock"
	"bizdesk/internal/pkg/utils"
	"bizdesk/internal/recurrence"
	"bizdesk/internal/repository"
)

// Claim is the right to execute one occurrence of one schedule.
type Claim struct {
	ScheduleID string
	Occurrence time.Time
	Token      string
	ExpiresAt  time.Time

	lockKey string
	locked  bool
}

// Coordinator hands out claims. The shared lock only spares the database a
// round of losing compare-and-swaps; the row update is what decides.
type Coordinator struct {
	schedules *repository.ScheduleRepository
	locker    lock.Locker
	ttl       time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewCoordinator(schedules *repository.ScheduleRepository, locker lock.Locker, ttl time.Duration, log *zap.Logger) *Coordinator {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		schedules: schedules,
		locker:    locker,
		ttl:       ttl,
		now:       time.Now,
		log:       log,
	}
}

func claimKey(scheduleID string, occurrence time.Time) string {
	return "recurring:claim:" + scheduleID + ":" + occurrence.Format(utils.DateLayout)
}

// TryClaim claims occurrence for the caller. ok is false when the schedule is
// not active, has moved past occurrence, or another live claim holds it.
func (c *Coordinator) TryClaim(ctx context.Context, scheduleID string, occurrence time.Time) (*Claim, bool, error) {
	occurrence = recurrence.Civil(occurrence)
	claim := &Claim{
		ScheduleID: scheduleID,
		Occurrence: occurrence,
		Token:      uuid.NewString(),
		lockKey:    claimKey(scheduleID, occurrence),
	}

	if c.locker != nil {
		ok, err := c.locker.Acquire(ctx, claim.lockKey, claim.Token, c.ttl)
		switch {
		case err != nil:
			// Fall through to the row claim, which is authoritative anyway.
			c.log.Warn("claim lock unavailable", zap.String("schedule_id", scheduleID), zap.Error(err))
		case !ok:
			return nil, false, nil
		default:
			claim.locked = true
		}
	}

	now := c.now().UTC().Truncate(time.Second)
	claim.ExpiresAt = now.Add(c.ttl)

	ok, err := c.schedules.AcquireClaim(ctx, scheduleID, occurrence, claim.Token, now, claim.ExpiresAt)
	if err != nil || !ok {
		c.unlock(claim)
		if err != nil {
			return nil, false, errors.Wrapf(err, "claim schedule %s", scheduleID)
		}
		return nil, false, nil
	}
	return claim, true, nil
}

// Release gives the claim back. It is safe after a successful execution,
// which already cleared the row marker.
func (c *Coordinator) Release(ctx context.Context, claim *Claim) error {
	if claim == nil {
		return nil
	}
	// Release even when the execution's context expired.
	ctx = context.WithoutCancel(ctx)
	err := c.schedules.ReleaseClaim(ctx, claim.ScheduleID, claim.Token)
	c.unlock(claim)
	if err != nil {
		return errors.Wrapf(err, "release claim on %s", claim.ScheduleID)
	}
	return nil
}

func (c *Coordinator) unlock(claim *Claim) {
	if !claim.locked {
		return
	}
	claim.locked = false
	if err := c.locker.Release(context.Background(), claim.lockKey, claim.Token); err != nil {
		c.log.Warn("claim unlock failed", zap.String("key", claim.lockKey), zap.Error(err))
	}
}
