/**
 * @description
 * This file implements the data access layer for recurring templates.
 * It scans for due income/expense templates and exposes the transactional
 * unit (lock template, insert ledger entry, advance next execution date)
 * the ledger writers post through.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver, pool and error codes.
 * - github.com/shopspring/decimal: amounts travel as numeric text.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/thatzerroguy/expense-tracker/internal/domain"
)

var (
	ErrTemplateNotFound    = errors.New("recurring template not found")
	ErrOwnerNotFound       = errors.New("template owner not found")
	ErrDuplicateOccurrence = errors.New("occurrence already posted")
	ErrUnknownKind         = errors.New("unknown transaction kind")
	ErrInvalidTemplate     = errors.New("invalid recurring template row")
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// LedgerTx is the set of writes available inside one posting transaction.
type LedgerTx interface {
	LockTemplate(ctx context.Context, kind domain.Kind, id uuid.UUID) (*domain.RecurringTemplate, error)
	InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error
	UpdateNextExecutionDate(ctx context.Context, kind domain.Kind, id uuid.UUID, next time.Time) error
}

// Repository handles database operations for recurring templates.
type Repository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// rowIterator is the subset of pgx.Rows the due scan reads.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

type templateQueries struct {
	table   string
	columns string
}

func queriesFor(kind domain.Kind) (templateQueries, error) {
	switch kind {
	case domain.KindIncome:
		return templateQueries{
			table: "recurring_incomes",
			columns: `id, user_id, amount::text, source, ''::text, ''::text, frequency::text, "interval",
			          COALESCE(start_date, next_execution_date), next_execution_date, is_active`,
		}, nil
	case domain.KindExpense:
		return templateQueries{
			table: "recurring_expenses",
			columns: `id, user_id, amount::text, ''::text, description, expense_type::text, frequency::text, "interval",
			          COALESCE(start_date, next_execution_date), next_execution_date, is_active`,
		}, nil
	}
	return templateQueries{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func scanTemplate(row pgx.Row, kind domain.Kind) (*domain.RecurringTemplate, error) {
	var (
		tpl       domain.RecurringTemplate
		amount    string
		category  string
		frequency string
	)
	err := row.Scan(
		&tpl.ID, &tpl.UserID, &amount, &tpl.Source, &tpl.Description, &category,
		&frequency, &tpl.Interval, &tpl.StartDate, &tpl.NextExecutionDate, &tpl.IsActive)
	if err != nil {
		return nil, err
	}

	tpl.Kind = kind
	tpl.Category = domain.ExpenseCategory(category)
	if tpl.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("%w: template %s has amount %q: %v", ErrInvalidTemplate, tpl.ID, amount, err)
	}
	// An unknown tag is kept as-is; the ledger writer rejects it per template
	// instead of failing the whole scan.
	if parsed, perr := domain.ParseFrequency(frequency); perr == nil {
		tpl.Frequency = parsed
	} else {
		tpl.Frequency = domain.Frequency(frequency)
	}
	return &tpl, nil
}

// FindDueTemplates returns active templates of the given kind whose next
// execution date is at or before asOf. Order is not guaranteed.
func (r *Repository) FindDueTemplates(ctx context.Context, kind domain.Kind, asOf time.Time) ([]domain.RecurringTemplate, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE is_active = TRUE
		  AND next_execution_date <= $1
	`, q.columns, q.table)
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.collectDue(rows, kind)
}

// collectDue reads the scanned rows. A row with corrupt data is logged and
// left out; the rest of the kind is still returned.
func (r *Repository) collectDue(rows rowIterator, kind domain.Kind) ([]domain.RecurringTemplate, error) {
	var templates []domain.RecurringTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows, kind)
		if err != nil {
			if errors.Is(err, ErrInvalidTemplate) {
				r.logger.Error("skipping corrupt recurring template", "kind", kind, "error", err)
				continue
			}
			return nil, err
		}
		templates = append(templates, *tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return templates, nil
}

// RunInTx runs fn inside a database transaction. The transaction commits only
// if fn returns nil; any error rolls back every write fn made.
func (r *Repository) RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgLedgerTx{tx: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type pgLedgerTx struct {
	tx pgx.Tx
}

// LockTemplate reads a template and holds its row lock until the transaction ends.
func (t *pgLedgerTx) LockTemplate(ctx context.Context, kind domain.Kind, id uuid.UUID) (*domain.RecurringTemplate, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, q.columns, q.table)
	tpl, err := scanTemplate(t.tx.QueryRow(ctx, query, id), kind)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return tpl, nil
}

// InsertLedgerEntry writes an income or expense row linked to its template.
func (t *pgLedgerTx) InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	var err error
	switch entry.Kind {
	case domain.KindIncome:
		query := `
			INSERT INTO incomes (id, user_id, amount, source, recurring_income_id, occurrence_date, created_at)
			VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		`
		_, err = t.tx.Exec(ctx, query,
			entry.ID, entry.UserID, entry.Amount.String(), entry.Source,
			entry.TemplateID, entry.OccurrenceDate, entry.PostedAt)
	case domain.KindExpense:
		query := `
			INSERT INTO expenses (id, user_id, amount, description, expense_type, recurring_expense_id, occurrence_date, created_at)
			VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)
		`
		_, err = t.tx.Exec(ctx, query,
			entry.ID, entry.UserID, entry.Amount.String(), entry.Description, string(entry.Category),
			entry.TemplateID, entry.OccurrenceDate, entry.PostedAt)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, entry.Kind)
	}

	return mapWriteError(err)
}

// UpdateNextExecutionDate advances a template's schedule.
func (t *pgLedgerTx) UpdateNextExecutionDate(ctx context.Context, kind domain.Kind, id uuid.UUID, next time.Time) error {
	q, err := queriesFor(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET next_execution_date = $1,
		    updated_at = NOW()
		WHERE id = $2
	`, q.table)
	commandTag, err := t.tx.Exec(ctx, query, next, id)
	if err != nil {
		return err
	}
	if commandTag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrOwnerNotFound, pgErr.ConstraintName)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicateOccurrence, pgErr.ConstraintName)
		}
	}
	return err
}
