package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/thatzerroguy/expense-tracker/internal/config"
	"github.com/thatzerroguy/expense-tracker/internal/domain"
	"github.com/thatzerroguy/expense-tracker/internal/ledger"
	"github.com/thatzerroguy/expense-tracker/internal/store"
	"github.com/thatzerroguy/expense-tracker/internal/store/storetest"
)

type sourceStub struct {
	kind     domain.Kind
	due      []domain.RecurringTemplate
	findErr  error
	postErrs map[uuid.UUID]error
	asOf     time.Time
	attempts []uuid.UUID
}

func (s *sourceStub) Kind() domain.Kind { return s.kind }

func (s *sourceStub) FindDue(ctx context.Context, asOf time.Time) ([]domain.RecurringTemplate, error) {
	s.asOf = asOf
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.due, nil
}

func (s *sourceStub) PostOccurrence(ctx context.Context, tpl domain.RecurringTemplate) (*domain.Posting, error) {
	s.attempts = append(s.attempts, tpl.ID)
	if err := s.postErrs[tpl.ID]; err != nil {
		return nil, err
	}
	id := tpl.ID
	return &domain.Posting{
		Entry:             domain.LedgerEntry{ID: uuid.New(), Kind: s.kind, UserID: tpl.UserID, TemplateID: &id},
		NextExecutionDate: tpl.NextExecutionDate.AddDate(0, 0, 1),
	}, nil
}

type publisherStub struct {
	mu     sync.Mutex
	keys   []string
	events []domain.RecurringPostedEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	if event, ok := body.(domain.RecurringPostedEvent); ok {
		p.events = append(p.events, event)
	}
	return p.err
}

func (p *publisherStub) Close() {}

func newTestJobs(sources []RecurringSource, publisher *publisherStub, status StatusRecorder, now time.Time) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{RecurringEventsExchange: "recurring_transactions"}
	var jobs *Jobs
	if publisher != nil {
		jobs = NewJobs(sources, publisher, status, logger, cfg)
	} else {
		jobs = NewJobs(sources, nil, status, logger, cfg)
	}
	jobs.now = func() time.Time { return now }
	return jobs
}

func dailyTemplate(kind domain.Kind, due time.Time) domain.RecurringTemplate {
	return domain.RecurringTemplate{
		ID:                uuid.New(),
		Kind:              kind,
		UserID:            uuid.New(),
		Amount:            decimal.NewFromInt(12),
		Source:            "Freelance",
		Description:       "Coffee",
		Category:          domain.CategoryFood,
		Frequency:         domain.FrequencyDaily,
		Interval:          1,
		NextExecutionDate: due,
		IsActive:          true,
	}
}

func postersFor(mem *storetest.Memory) []RecurringSource {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return []RecurringSource{
		ledger.NewIncomePoster(mem, logger),
		ledger.NewExpensePoster(mem, logger),
	}
}

func TestRunPass_PostsDueTemplateExactlyOnce(t *testing.T) {
	now := time.Date(2024, time.May, 1, 2, 0, 0, 0, time.UTC)
	tpl := dailyTemplate(domain.KindIncome, now)
	mem := storetest.NewMemory(tpl)
	publisher := &publisherStub{}
	jobs := newTestJobs(postersFor(mem), publisher, nil, now)

	summary := jobs.RunPass(context.Background())

	if n := len(mem.EntriesFor(tpl.ID)); n != 1 {
		t.Fatalf("expected one entry for the template, got %d", n)
	}
	stored, _ := mem.Template(tpl.ID)
	if want := now.AddDate(0, 0, 1); !stored.NextExecutionDate.Equal(want) {
		t.Fatalf("expected next execution date %s, got %s", want, stored.NextExecutionDate)
	}
	if got := summary.Kinds[domain.KindIncome]; got.Due != 1 || got.Posted != 1 {
		t.Fatalf("unexpected income summary: %+v", got)
	}
	if len(publisher.keys) != 1 || publisher.keys[0] != "recurring.income.posted" {
		t.Fatalf("expected one income posted event, got %v", publisher.keys)
	}
	if publisher.events[0].TemplateID != tpl.ID {
		t.Fatalf("expected event for template %s, got %s", tpl.ID, publisher.events[0].TemplateID)
	}
}

func TestRunPass_ContinuesAfterFailedTemplate(t *testing.T) {
	now := time.Date(2024, time.May, 1, 2, 0, 0, 0, time.UTC)
	first := dailyTemplate(domain.KindExpense, now)
	second := dailyTemplate(domain.KindExpense, now)
	source := &sourceStub{
		kind:     domain.KindExpense,
		due:      []domain.RecurringTemplate{first, second},
		postErrs: map[uuid.UUID]error{first.ID: errors.New("deadlock detected")},
	}
	jobs := newTestJobs([]RecurringSource{source}, nil, nil, now)

	summary := jobs.RunPass(context.Background())

	if len(source.attempts) != 2 {
		t.Fatalf("expected both templates to be attempted, got %d attempts", len(source.attempts))
	}
	got := summary.Kinds[domain.KindExpense]
	if got.Posted != 1 || got.Failed != 1 {
		t.Fatalf("expected one posted and one failed, got %+v", got)
	}
}

func TestRunPass_IsolatesFailureWithRealStore(t *testing.T) {
	now := time.Date(2024, time.May, 1, 2, 0, 0, 0, time.UTC)
	broken := dailyTemplate(domain.KindExpense, now)
	healthy := dailyTemplate(domain.KindExpense, now)
	mem := storetest.NewMemory(broken, healthy)
	mem.InsertErrFor = map[uuid.UUID]error{broken.ID: errors.New("check constraint violated")}
	jobs := newTestJobs(postersFor(mem), nil, nil, now)

	jobs.RunPass(context.Background())

	if n := len(mem.EntriesFor(healthy.ID)); n != 1 {
		t.Fatalf("expected healthy template to be posted, got %d entries", n)
	}
	if n := len(mem.EntriesFor(broken.ID)); n != 0 {
		t.Fatalf("expected no entry for the failing template, got %d", n)
	}
	stored, _ := mem.Template(broken.ID)
	if !stored.NextExecutionDate.Equal(now) {
		t.Fatalf("expected failing template to stay due at %s, got %s", now, stored.NextExecutionDate)
	}
}

func TestRunPass_SecondPassFindsNothingDue(t *testing.T) {
	now := time.Date(2024, time.May, 1, 2, 0, 0, 0, time.UTC)
	income := dailyTemplate(domain.KindIncome, now)
	expense := dailyTemplate(domain.KindExpense, now.Add(-time.Hour))
	mem := storetest.NewMemory(income, expense)
	jobs := newTestJobs(postersFor(mem), nil, nil, now)

	jobs.RunPass(context.Background())
	second := jobs.RunPass(context.Background())

	if n := len(mem.Entries()); n != 2 {
		t.Fatalf("expected two entries after both passes, got %d", n)
	}
	if totals := second.Totals(); totals.Due != 0 || totals.Posted != 0 {
		t.Fatalf("expected second pass to find nothing due, got %+v", totals)
	}
}

func TestRunPass_CatchesUpOneOccurrencePerPass(t *testing.T) {
	now := time.Date(2024, time.May, 11, 2, 0, 0, 0, time.UTC)
	overdue := now.AddDate(0, 0, -10)
	tpl := dailyTemplate(domain.KindIncome, overdue)
	mem := storetest.NewMemory(tpl)
	jobs := newTestJobs(postersFor(mem), nil, nil, now)

	jobs.RunPass(context.Background())

	entries := mem.EntriesFor(tpl.ID)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one catch-up entry, got %d", len(entries))
	}
	if !entries[0].OccurrenceDate.Equal(overdue) {
		t.Fatalf("expected catch-up entry for %s, got %s", overdue, entries[0].OccurrenceDate)
	}
	stored, _ := mem.Template(tpl.ID)
	if want := overdue.AddDate(0, 0, 1); !stored.NextExecutionDate.Equal(want) {
		t.Fatalf("expected next execution date %s, got %s", want, stored.NextExecutionDate)
	}

	// Still overdue, so the following tick posts the next missed day.
	jobs.RunPass(context.Background())
	if n := len(mem.EntriesFor(tpl.ID)); n != 2 {
		t.Fatalf("expected second catch-up entry on the next pass, got %d", n)
	}
}

func TestRunPass_ScanFailureDoesNotStopOtherKind(t *testing.T) {
	now := time.Date(2024, time.May, 1, 2, 0, 0, 0, time.UTC)
	expense := dailyTemplate(domain.KindExpense, now)
	mem := storetest.NewMemory(expense)
	mem.FindErr = map[domain.Kind]error{domain.KindIncome: errors.New("relation does not exist")}
	jobs := newTestJobs(postersFor(mem), nil, nil, now)

	summary := jobs.RunPass(context.Background())

	if !summary.Kinds[domain.KindIncome].ScanErr {
		t.Fatal("expected income scan error to be reported")
	}
	if n := len(mem.EntriesFor(expense.ID)); n != 1 {
		t.Fatalf("expected expense to be posted despite income scan failure, got %d", n)
	}
}

func TestRunPass_SkipsTemplatesChangedSinceScan(t *testing.T) {
	now := time.Date(2024, time.May, 1, 2, 0, 0, 0, time.UTC)
	gone := dailyTemplate(domain.KindIncome, now)
	advanced := dailyTemplate(domain.KindIncome, now)
	source := &sourceStub{
		kind: domain.KindIncome,
		due:  []domain.RecurringTemplate{gone, advanced},
		postErrs: map[uuid.UUID]error{
			gone.ID:     store.ErrTemplateNotFound,
			advanced.ID: ledger.ErrTemplateAdvanced,
		},
	}
	jobs := newTestJobs([]RecurringSource{source}, nil, nil, now)

	summary := jobs.RunPass(context.Background())

	if got := summary.Kinds[domain.KindIncome]; got.Skipped != 2 || got.Failed != 0 {
		t.Fatalf("expected two skips and no failures, got %+v", got)
	}
}

func TestRunPass_UsesSingleEvaluationTime(t *testing.T) {
	now := time.Date(2024, time.May, 1, 2, 0, 0, 0, time.UTC)
	income := &sourceStub{kind: domain.KindIncome}
	expense := &sourceStub{kind: domain.KindExpense}
	jobs := newTestJobs([]RecurringSource{income, expense}, nil, nil, now)

	jobs.RunPass(context.Background())

	if !income.asOf.Equal(now) || !expense.asOf.Equal(now) {
		t.Fatalf("expected both scans as of %s, got %s and %s", now, income.asOf, expense.asOf)
	}
}

func TestRunPass_PublishFailureDoesNotUndoPosting(t *testing.T) {
	now := time.Date(2024, time.May, 1, 2, 0, 0, 0, time.UTC)
	tpl := dailyTemplate(domain.KindExpense, now)
	mem := storetest.NewMemory(tpl)
	publisher := &publisherStub{err: errors.New("channel closed")}
	jobs := newTestJobs(postersFor(mem), publisher, nil, now)

	summary := jobs.RunPass(context.Background())

	if got := summary.Kinds[domain.KindExpense]; got.Posted != 1 {
		t.Fatalf("expected posting to count despite publish failure, got %+v", got)
	}
	if n := len(mem.EntriesFor(tpl.ID)); n != 1 {
		t.Fatalf("expected committed entry, got %d", n)
	}
}

func TestRunPass_RecordsStatus(t *testing.T) {
	now := time.Date(2024, time.May, 1, 2, 0, 0, 0, time.UTC)
	mem := storetest.NewMemory(dailyTemplate(domain.KindIncome, now))
	status := &MemoryStatusRecorder{}
	jobs := newTestJobs(postersFor(mem), nil, status, now)

	if last, err := jobs.LastPass(context.Background()); err != nil || last != nil {
		t.Fatalf("expected no recorded pass yet, got %+v (%v)", last, err)
	}

	jobs.RunPass(context.Background())

	last, err := jobs.LastPass(context.Background())
	if err != nil {
		t.Fatalf("LastPass returned error: %v", err)
	}
	if last == nil || last.Totals().Posted != 1 || !last.AsOf.Equal(now) {
		t.Fatalf("unexpected recorded pass: %+v", last)
	}
}
