package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/thatzerroguy/expense-tracker/internal/domain"
)

// RedisStatusRecorder stores the last pass summary in Redis so every
// instance's ops endpoint reports the same run.
type RedisStatusRecorder struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStatusRecorder stores summaries under "<prefix>:last_pass". A nil
// client turns the recorder into a no-op.
func NewRedisStatusRecorder(client redis.UniversalClient, prefix string) *RedisStatusRecorder {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "expense-tracker:recurring"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisStatusRecorder{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (r *RedisStatusRecorder) key() string {
	return r.prefix + ":last_pass"
}

// RecordPass overwrites the stored summary with the latest pass.
func (r *RedisStatusRecorder) RecordPass(ctx context.Context, summary domain.PassSummary) error {
	if r == nil || r.client == nil {
		return nil
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(), payload, 0).Err()
}

// LastPass returns the stored summary, or nil if no pass has been recorded.
func (r *RedisStatusRecorder) LastPass(ctx context.Context) (*domain.PassSummary, error) {
	if r == nil || r.client == nil {
		return nil, nil
	}
	raw, err := r.client.Get(ctx, r.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var summary domain.PassSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// MemoryStatusRecorder keeps the last pass in process memory. Used when
// Redis is not configured.
type MemoryStatusRecorder struct {
	mu   sync.RWMutex
	last *domain.PassSummary
}

// RecordPass keeps summary as the last pass.
func (m *MemoryStatusRecorder) RecordPass(ctx context.Context, summary domain.PassSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &summary
	return nil
}

// LastPass returns a copy of the last pass, or nil before the first one.
func (m *MemoryStatusRecorder) LastPass(ctx context.Context) (*domain.PassSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return nil, nil
	}
	summary := *m.last
	return &summary, nil
}
