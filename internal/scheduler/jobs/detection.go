package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/evaluation"
	"github.com/wonny/notes/backend/pkg/logger"
)

// BatchEvaluator evaluates a list of products on one date
type BatchEvaluator interface {
	EvaluateAll(ctx context.Context, products []contracts.Product, date time.Time) []evaluation.Outcome
}

// EventDetectionJob evaluates every active product so that new lifecycle
// events reach the log and the feed without a request
type EventDetectionJob struct {
	repo      contracts.ProductRepository
	evaluator BatchEvaluator
	schedule  string
	logger    *logger.Logger
	now       func() time.Time
}

// NewEventDetectionJob creates a new detection job
func NewEventDetectionJob(repo contracts.ProductRepository, evaluator BatchEvaluator, schedule string, log *logger.Logger) *EventDetectionJob {
	if schedule == "" {
		schedule = "0 */15 * * * *"
	}
	return &EventDetectionJob{
		repo:      repo,
		evaluator: evaluator,
		schedule:  schedule,
		logger:    log,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *EventDetectionJob) Name() string {
	return "event_detection"
}

// Schedule returns the cron schedule
func (j *EventDetectionJob) Schedule() string {
	return j.schedule
}

// Run evaluates all active products for today. Per-product failures are
// logged and counted; only a failed product listing fails the job.
func (j *EventDetectionJob) Run(ctx context.Context) error {
	list, err := j.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active products: %w", err)
	}

	outcomes := j.evaluator.EvaluateAll(ctx, list, contracts.Day(j.now()))

	failed, newEvents := 0, 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
		if o.Report != nil {
			newEvents += o.Report.NewEvents
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"products":   len(list),
		"failed":     failed,
		"new_events": newEvents,
	}).Info("Event detection completed")
	return nil
}
