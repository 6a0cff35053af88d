/**
 * @description
 * Calendar arithmetic for recurring templates. Month and year steps keep the
 * day of month when the target month has it and otherwise clamp to that
 * month's last day, so Jan 31 + 1 month is Feb 28 (Feb 29 in leap years).
 */
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/thatzerroguy/expense-tracker/internal/domain"
)

var (
	ErrUnknownFrequency = errors.New("unknown frequency")
	ErrInvalidInterval  = errors.New("interval must be at least 1")
)

// NextExecutionDate returns the occurrence that follows ref. The result is
// always strictly after ref. Wall clock time and location of ref are kept.
func NextExecutionDate(freq domain.Frequency, interval int, ref time.Time) (time.Time, error) {
	if interval < 1 {
		return time.Time{}, fmt.Errorf("%w: got %d", ErrInvalidInterval, interval)
	}

	switch freq {
	case domain.FrequencyDaily:
		return ref.AddDate(0, 0, interval), nil
	case domain.FrequencyWeekly:
		return ref.AddDate(0, 0, 7*interval), nil
	case domain.FrequencyMonthly:
		return addMonthsClamped(ref, interval), nil
	case domain.FrequencyYearly:
		return addMonthsClamped(ref, 12*interval), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
	}
}

// Occurrences chains NextExecutionDate n times starting after start.
func Occurrences(freq domain.Frequency, interval int, start time.Time, n int) ([]time.Time, error) {
	dates := make([]time.Time, 0, n)
	current := start
	for i := 0; i < n; i++ {
		next, err := NextExecutionDate(freq, interval, current)
		if err != nil {
			return nil, err
		}
		dates = append(dates, next)
		current = next
	}
	return dates, nil
}

// time.AddDate normalizes Jan 31 + 1 month to Mar 3; this clamps instead.
func addMonthsClamped(ref time.Time, months int) time.Time {
	year, month, day := ref.Date()
	hour, minute, second := ref.Clock()

	total := int(month) - 1 + months
	targetYear := year + total/12
	targetMonth := time.Month(total%12 + 1)

	if last := daysInMonth(targetYear, targetMonth); day > last {
		day = last
	}

	return time.Date(targetYear, targetMonth, day, hour, minute, second, ref.Nanosecond(), ref.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
