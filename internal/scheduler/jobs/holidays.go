package jobs

import (
	"context"
	"errors"

	"github.com/wonny/notes/backend/internal/calendar"
	"github.com/wonny/notes/backend/pkg/logger"
)

// HolidayRefreshJob reloads the cached market holiday lists
type HolidayRefreshJob struct {
	source calendar.Refresher
	logger *logger.Logger
}

// NewHolidayRefreshJob creates a new holiday refresh job
func NewHolidayRefreshJob(source calendar.Refresher, log *logger.Logger) *HolidayRefreshJob {
	return &HolidayRefreshJob{source: source, logger: log}
}

// Name returns the job name
func (j *HolidayRefreshJob) Name() string {
	return "holiday_refresh"
}

// Schedule returns the cron schedule (daily 06:00)
func (j *HolidayRefreshJob) Schedule() string {
	return "0 0 6 * * *"
}

// Run refreshes the holiday cache. An empty result is an error so the
// scheduler retries it; the previous list stays in place meanwhile.
func (j *HolidayRefreshJob) Run(ctx context.Context) error {
	n := j.source.Refresh(ctx)
	if n == 0 {
		return errors.New("holiday refresh returned no dates")
	}
	j.logger.WithField("holidays", n).Info("Holiday calendar refreshed")
	return nil
}
