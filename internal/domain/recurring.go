/**
 * @description
 * Domain models for recurring income and expense templates and the ledger
 * entries the scheduler materializes from them.
 */
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies which ledger a recurring template posts into.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Frequency is the unit a recurring template repeats in.
type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyYearly  Frequency = "YEARLY"
)

// ParseFrequency normalizes a stored or user supplied frequency tag.
func ParseFrequency(raw string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(raw)))
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", raw)
}

// ExpenseCategory mirrors the expense_type enum of the expenses table.
type ExpenseCategory string

const (
	CategoryFood          ExpenseCategory = "FOOD"
	CategoryTransport     ExpenseCategory = "TRANSPORT"
	CategoryEntertainment ExpenseCategory = "ENTERTAINMENT"
	CategoryUtilities     ExpenseCategory = "UTILITIES"
	CategoryHealthcare    ExpenseCategory = "HEALTHCARE"
	CategoryOther         ExpenseCategory = "OTHER"
)

// RecurringTemplate is a stored rule for a repeating income or expense.
// Source is set for income templates; Description and Category for expenses.
type RecurringTemplate struct {
	ID                uuid.UUID       `json:"id"`
	Kind              Kind            `json:"kind"`
	UserID            uuid.UUID       `json:"user_id"`
	Amount            decimal.Decimal `json:"amount"`
	Source            string          `json:"source,omitempty"`
	Description       string          `json:"description,omitempty"`
	Category          ExpenseCategory `json:"expense_type,omitempty"`
	Frequency         Frequency       `json:"frequency"`
	Interval          int             `json:"interval"`
	StartDate         time.Time       `json:"start_date"`
	NextExecutionDate time.Time       `json:"next_execution_date"`
	IsActive          bool            `json:"is_active"`
}

// LedgerEntry is one concrete income or expense row.
// TemplateID is nil for entries created outside the scheduler.
type LedgerEntry struct {
	ID             uuid.UUID       `json:"id"`
	Kind           Kind            `json:"kind"`
	UserID         uuid.UUID       `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Source         string          `json:"source,omitempty"`
	Description    string          `json:"description,omitempty"`
	Category       ExpenseCategory `json:"expense_type,omitempty"`
	OccurrenceDate time.Time       `json:"occurrence_date"`
	PostedAt       time.Time       `json:"posted_at"`
	TemplateID     *uuid.UUID      `json:"template_id,omitempty"`
}

// RecurringPostedEvent is published after a ledger entry has been committed.
type RecurringPostedEvent struct {
	EntryID           uuid.UUID       `json:"entry_id"`
	TemplateID        uuid.UUID       `json:"template_id"`
	Kind              Kind            `json:"kind"`
	UserID            uuid.UUID       `json:"user_id"`
	Amount            decimal.Decimal `json:"amount"`
	OccurrenceDate    time.Time       `json:"occurrence_date"`
	NextExecutionDate time.Time       `json:"next_execution_date"`
	PostedAt          time.Time       `json:"posted_at"`
}

// Posting is the committed result of materializing one occurrence.
type Posting struct {
	Entry                 LedgerEntry `json:"entry"`
	PreviousExecutionDate time.Time   `json:"previous_execution_date"`
	NextExecutionDate     time.Time   `json:"next_execution_date"`
}

// Event builds the message announced once the posting has committed.
func (p Posting) Event() RecurringPostedEvent {
	var templateID uuid.UUID
	if p.Entry.TemplateID != nil {
		templateID = *p.Entry.TemplateID
	}
	return RecurringPostedEvent{
		EntryID:           p.Entry.ID,
		TemplateID:        templateID,
		Kind:              p.Entry.Kind,
		UserID:            p.Entry.UserID,
		Amount:            p.Entry.Amount,
		OccurrenceDate:    p.Entry.OccurrenceDate,
		NextExecutionDate: p.NextExecutionDate,
		PostedAt:          p.Entry.PostedAt,
	}
}
