package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunPrintsClampedMonthlyDates(t *testing.T) {
	var buf bytes.Buffer
	err := run(&buf, &Params{Start: "2024-01-31", Frequency: "monthly", Interval: 1, Count: 3})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"2024-02-29", "2024-03-29", "2024-04-29"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %s, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "2024-03-02") {
		t.Fatalf("expected no month overflow in output:\n%s", out)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{name: "unknown frequency", params: Params{Start: "2024-01-31", Frequency: "HOURLY", Interval: 1, Count: 1}},
		{name: "bad date", params: Params{Start: "31/01/2024", Frequency: "DAILY", Interval: 1, Count: 1}},
		{name: "zero interval", params: Params{Start: "2024-01-31", Frequency: "DAILY", Interval: 0, Count: 1}},
		{name: "zero count", params: Params{Start: "2024-01-31", Frequency: "DAILY", Interval: 1, Count: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := run(&buf, &tt.params); err == nil {
				t.Fatalf("expected error, got output:\n%s", buf.String())
			}
		})
	}
}
