/**
 * @description
 * Scheduled job implementation for recurring income and expense posting.
 * One pass scans every source for templates due as of now and posts a single
 * occurrence for each. Failures are isolated per template and never abort
 * the pass; a skipped template stays due and is retried on the next tick.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/thatzerroguy/expense-tracker/internal/config"
	"github.com/thatzerroguy/expense-tracker/internal/domain"
	"github.com/thatzerroguy/expense-tracker/internal/ledger"
	"github.com/thatzerroguy/expense-tracker/internal/store"
	"github.com/thatzerroguy/expense-tracker/pkg/rabbitmq"
)

// RecurringSource is one kind of recurring template the scheduler can post.
type RecurringSource interface {
	Kind() domain.Kind
	FindDue(ctx context.Context, asOf time.Time) ([]domain.RecurringTemplate, error)
	PostOccurrence(ctx context.Context, tpl domain.RecurringTemplate) (*domain.Posting, error)
}

// StatusRecorder keeps the summary of the most recent pass.
type StatusRecorder interface {
	RecordPass(ctx context.Context, summary domain.PassSummary) error
	LastPass(ctx context.Context) (*domain.PassSummary, error)
}

// Jobs contains the logic for the recurring posting pass.
type Jobs struct {
	sources   []RecurringSource
	publisher rabbitmq.Publisher
	status    StatusRecorder
	logger    *slog.Logger
	config    config.Config
	now       func() time.Time

	// passMu keeps the cron tick and a manual trigger from interleaving in one process.
	passMu sync.Mutex
}

// NewJobs creates a new Jobs runner.
func NewJobs(sources []RecurringSource, publisher rabbitmq.Publisher, status StatusRecorder, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		sources:   sources,
		publisher: publisher,
		status:    status,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
}

// ProcessRecurringTransactions is the cron entry point.
func (j *Jobs) ProcessRecurringTransactions() {
	j.RunPass(context.Background())
}

// RunPass posts every template due as of now. It never fails; outcomes are
// logged and returned as a summary.
func (j *Jobs) RunPass(ctx context.Context) domain.PassSummary {
	j.passMu.Lock()
	defer j.passMu.Unlock()

	startedAt := j.now()
	summary := domain.PassSummary{
		StartedAt: startedAt,
		AsOf:      startedAt,
		Kinds:     make(map[domain.Kind]domain.KindSummary, len(j.sources)),
	}
	j.logger.Info("starting recurring transactions job", "as_of", startedAt)

	for _, source := range j.sources {
		summary.Kinds[source.Kind()] = j.processSource(ctx, source, startedAt)
	}

	summary.FinishedAt = j.now()
	totals := summary.Totals()
	j.logger.Info("recurring transactions job finished",
		"due", totals.Due, "posted", totals.Posted, "skipped", totals.Skipped, "failed", totals.Failed,
		"duration", summary.FinishedAt.Sub(startedAt))

	if j.status != nil {
		if err := j.status.RecordPass(ctx, summary); err != nil {
			j.logger.Warn("failed to record recurring pass status", "error", err)
		}
	}

	return summary
}

// LastPass returns the most recently recorded pass, or nil if none is known.
func (j *Jobs) LastPass(ctx context.Context) (*domain.PassSummary, error) {
	if j.status == nil {
		return nil, nil
	}
	return j.status.LastPass(ctx)
}

func (j *Jobs) processSource(ctx context.Context, source RecurringSource, asOf time.Time) domain.KindSummary {
	kind := source.Kind()
	var result domain.KindSummary

	templates, err := source.FindDue(ctx, asOf)
	if err != nil {
		j.logger.Error("failed to get due recurring templates", "kind", kind, "error", err)
		result.ScanErr = true
		return result
	}

	result.Due = len(templates)
	if len(templates) == 0 {
		j.logger.Info("no due recurring templates to process", "kind", kind)
		return result
	}
	j.logger.Info("found due recurring templates", "kind", kind, "count", len(templates))

	for _, tpl := range templates {
		posting, err := source.PostOccurrence(ctx, tpl)
		if err != nil {
			if j.logPostingFailure(kind, tpl, err) {
				result.Skipped++
			} else {
				result.Failed++
			}
			continue
		}

		result.Posted++
		j.logger.Info("posted recurring transaction",
			"kind", kind, "template_id", tpl.ID, "entry_id", posting.Entry.ID,
			"next_execution_date", posting.NextExecutionDate)
		j.publishPosted(ctx, posting)
	}

	return result
}

// logPostingFailure logs err at a level matching its cause and reports whether
// it was an expected skip rather than a failure.
func (j *Jobs) logPostingFailure(kind domain.Kind, tpl domain.RecurringTemplate, err error) bool {
	attrs := []any{"kind", kind, "template_id", tpl.ID, "user_id", tpl.UserID, "error", err}

	switch {
	case errors.Is(err, ledger.ErrTemplateAdvanced), errors.Is(err, ledger.ErrTemplateInactive):
		j.logger.Info("skipping recurring template changed since scan", attrs...)
		return true
	case errors.Is(err, store.ErrTemplateNotFound), errors.Is(err, store.ErrOwnerNotFound):
		j.logger.Warn("skipping recurring template with missing reference", attrs...)
		return true
	case errors.Is(err, store.ErrDuplicateOccurrence):
		j.logger.Warn("skipping recurring occurrence already posted", attrs...)
		return true
	default:
		j.logger.Error("failed to post recurring template", attrs...)
		return false
	}
}

func (j *Jobs) publishPosted(ctx context.Context, posting *domain.Posting) {
	if j.publisher == nil {
		return
	}
	routingKey := "recurring." + string(posting.Entry.Kind) + ".posted"
	if err := j.publisher.Publish(ctx, j.config.RecurringEventsExchange, routingKey, posting.Event()); err != nil {
		j.logger.Error("failed to publish recurring posted event",
			"routing_key", routingKey, "entry_id", posting.Entry.ID, "error", err)
	}
}
