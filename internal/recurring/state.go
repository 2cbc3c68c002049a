package recurring

import "bizdesk/internal/models"

// transitions lists the allowed targets per status. completed and cancelled
// have no entry: both are terminal.
var transitions = map[string][]string{
	models.ScheduleActive: {models.SchedulePaused, models.ScheduleCompleted, models.ScheduleCancelled},
	models.SchedulePaused: {models.ScheduleActive, models.ScheduleCompleted, models.ScheduleCancelled},
}

// CanTransition reports whether a schedule may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Runnable reports whether the sweep or a manual trigger may claim a schedule
// in this status.
func Runnable(status string) bool {
	return status == models.ScheduleActive
}
