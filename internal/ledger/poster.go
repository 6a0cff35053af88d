/**
 * @description
 * Ledger writers for recurring templates. Each poster owns the transaction
 * that inserts one ledger entry for a due template and advances the template
 * to its next execution date. Both happen in one store transaction, so an
 * entry is never committed without its advance, or the reverse.
 */
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/thatzerroguy/expense-tracker/internal/domain"
	"github.com/thatzerroguy/expense-tracker/internal/recurrence"
	"github.com/thatzerroguy/expense-tracker/internal/store"
)

var (
	// ErrTemplateAdvanced means another pass already posted this occurrence.
	ErrTemplateAdvanced = errors.New("template already advanced past this occurrence")
	ErrTemplateInactive = errors.New("template is inactive")
)

// TemplateStore defines the store operations the posters need.
type TemplateStore interface {
	FindDueTemplates(ctx context.Context, kind domain.Kind, asOf time.Time) ([]domain.RecurringTemplate, error)
	RunInTx(ctx context.Context, fn func(tx store.LedgerTx) error) error
}

type poster struct {
	kind   domain.Kind
	store  TemplateStore
	logger *slog.Logger
	now    func() time.Time
	// describe copies the kind specific payload from template to entry.
	describe func(tpl *domain.RecurringTemplate, entry *domain.LedgerEntry)
}

// Kind reports which ledger this poster writes to.
func (p *poster) Kind() domain.Kind {
	return p.kind
}

// FindDue lists the active templates of this kind due at or before asOf.
func (p *poster) FindDue(ctx context.Context, asOf time.Time) ([]domain.RecurringTemplate, error) {
	return p.store.FindDueTemplates(ctx, p.kind, asOf)
}

// PostOccurrence materializes the occurrence tpl was scanned for. The next
// execution date is chained from the stored due date, not from the current
// time, so a late run keeps the original cadence.
func (p *poster) PostOccurrence(ctx context.Context, tpl domain.RecurringTemplate) (*domain.Posting, error) {
	var posting domain.Posting

	err := p.store.RunInTx(ctx, func(tx store.LedgerTx) error {
		current, err := tx.LockTemplate(ctx, p.kind, tpl.ID)
		if err != nil {
			return fmt.Errorf("lock template: %w", err)
		}
		if !current.IsActive {
			return ErrTemplateInactive
		}
		if !current.NextExecutionDate.Equal(tpl.NextExecutionDate) {
			return fmt.Errorf("%w: scanned %s, stored %s", ErrTemplateAdvanced,
				tpl.NextExecutionDate.Format(time.RFC3339), current.NextExecutionDate.Format(time.RFC3339))
		}

		templateID := current.ID
		entry := domain.LedgerEntry{
			ID:             uuid.New(),
			Kind:           p.kind,
			UserID:         current.UserID,
			Amount:         current.Amount,
			OccurrenceDate: current.NextExecutionDate,
			PostedAt:       p.now(),
			TemplateID:     &templateID,
		}
		p.describe(current, &entry)

		if err := tx.InsertLedgerEntry(ctx, &entry); err != nil {
			return fmt.Errorf("insert %s entry: %w", p.kind, err)
		}

		next, err := recurrence.NextExecutionDate(current.Frequency, current.Interval, current.NextExecutionDate)
		if err != nil {
			return fmt.Errorf("compute next execution date: %w", err)
		}

		if err := tx.UpdateNextExecutionDate(ctx, p.kind, current.ID, next); err != nil {
			return fmt.Errorf("advance template: %w", err)
		}

		posting = domain.Posting{
			Entry:                 entry,
			PreviousExecutionDate: current.NextExecutionDate,
			NextExecutionDate:     next,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("posted recurring occurrence",
		"kind", p.kind, "template_id", tpl.ID, "entry_id", posting.Entry.ID,
		"occurrence_date", posting.PreviousExecutionDate, "next_execution_date", posting.NextExecutionDate)
	return &posting, nil
}

// IncomePoster posts recurring income templates into the incomes ledger.
type IncomePoster struct {
	poster
}

// NewIncomePoster creates an income ledger writer.
func NewIncomePoster(store TemplateStore, logger *slog.Logger) *IncomePoster {
	return &IncomePoster{poster{
		kind:   domain.KindIncome,
		store:  store,
		logger: logger,
		now:    time.Now,
		describe: func(tpl *domain.RecurringTemplate, entry *domain.LedgerEntry) {
			entry.Source = tpl.Source
		},
	}}
}

// ExpensePoster posts recurring expense templates into the expenses ledger.
type ExpensePoster struct {
	poster
}

// NewExpensePoster creates an expense ledger writer.
func NewExpensePoster(store TemplateStore, logger *slog.Logger) *ExpensePoster {
	return &ExpensePoster{poster{
		kind:   domain.KindExpense,
		store:  store,
		logger: logger,
		now:    time.Now,
		describe: func(tpl *domain.RecurringTemplate, entry *domain.LedgerEntry) {
			entry.Description = tpl.Description
			entry.Category = tpl.Category
		},
	}}
}
