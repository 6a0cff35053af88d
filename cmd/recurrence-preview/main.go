// Command recurrence-preview prints the upcoming execution dates a recurring
// template would get, using the same calendar rules as the scheduler.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/thatzerroguy/expense-tracker/internal/domain"
	"github.com/thatzerroguy/expense-tracker/internal/recurrence"
)

const dateLayout = "2006-01-02"

type Params struct {
	Start     string `descr:"Current next execution date (YYYY-MM-DD)"`
	Frequency string `descr:"Recurrence frequency" alts:"DAILY,WEEKLY,MONTHLY,YEARLY" default:"MONTHLY"`
	Interval  int    `descr:"Frequency units between occurrences" default:"1"`
	Count     int    `descr:"Number of occurrences to print" default:"12"`
}

func main() {
	boa.NewCmdT[Params]("recurrence-preview").
		WithShort("Preview upcoming recurring transaction dates").
		WithLong("Chains next-execution-date arithmetic from a start date. Month and year steps clamp to the last day of shorter months.").
		WithRunFunc(func(params *Params) {
			if err := run(os.Stdout, params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(w io.Writer, params *Params) error {
	freq, err := domain.ParseFrequency(params.Frequency)
	if err != nil {
		return err
	}
	start, err := time.Parse(dateLayout, params.Start)
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", params.Start, err)
	}
	if params.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", params.Count)
	}

	dates, err := recurrence.Occurrences(freq, params.Interval, start, params.Count)
	if err != nil {
		return err
	}

	renderOccurrences(w, start, dates)
	return nil
}

func renderOccurrences(w io.Writer, start time.Time, dates []time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Date", "Weekday", "Days since previous"})

	previous := start
	for i, d := range dates {
		date := d.Format(dateLayout)
		if d.Day() != start.Day() {
			// Clamped to a shorter month.
			date = text.FgYellow.Sprint(date)
		}
		gap := int(d.Sub(previous).Hours() / 24)
		t.AppendRow(table.Row{i + 1, date, d.Weekday().String(), gap})
		previous = d
	}

	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
}
