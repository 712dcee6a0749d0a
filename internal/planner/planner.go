// Package planner expands a backfill spec into an
// ordered month list and classifying each month against the
// processing log.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/pkg/models"
)

// Month is one (year, month) pair in ascending chronological order.
type Month struct {
	Year  int
	Month int
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// Before reports whether m precedes other chronologically.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

// Classification is the per-month disposition the orchestrator acts on.
type Classification string

const (
	ClassNew   Classification = "new"
	ClassSkip  Classification = "skip"
	ClassRetry Classification = "retry"
)

// maxRetryAttempts bounds how many times a failed month is retried
// before the planner gives up on it.
const maxRetryAttempts = 3

// PlannedMonth pairs a Month with its classification and, for
// skip/retry, the matching ProcessingLog row.
type PlannedMonth struct {
	Month          Month
	Classification Classification
	Log            *models.ProcessingLog
}

// LogLookup resolves the existing ProcessingLog row for a month, if
// any — satisfied by internal/proclog's sqlx-backed store, by
// internal/orchestrator's LogLookupAdapter, or by a fake in tests.
type LogLookup interface {
	Get(ctx context.Context, year, month int) (*models.ProcessingLog, error)
}

// LocalFileLister satisfies the "empty spec" case: months for which a
// local parquet file already exists in data_dir.
type LocalFileLister interface {
	ExistingMonths(ctx context.Context) ([]Month, error)
}

// Plan expands spec into an ordered list of PlannedMonth, classifying
// each against logs. now is injected (not time.Now()) so last_N_months
// and "all" resolve deterministically in tests.
func Plan(ctx context.Context, spec string, now time.Time, logs LogLookup, files LocalFileLister) ([]PlannedMonth, error) {
	months, err := expand(ctx, spec, now, files)
	if err != nil {
		return nil, err
	}

	planned := make([]PlannedMonth, 0, len(months))
	for _, m := range months {
		log, err := logs.Get(ctx, m.Year, m.Month)
		if err != nil {
			return nil, errs.New(errs.Fatal, fmt.Errorf("load processing log for %s: %w", m, err))
		}

		p := PlannedMonth{Month: m, Log: log}
		switch {
		case log == nil:
			p.Classification = ClassNew
		case log.Status == models.StatusCompleted:
			p.Classification = ClassSkip
		case log.Status == models.StatusInProgress:
			p.Classification = ClassRetry
		case log.Status == models.StatusFailed:
			if log.AttemptCount >= maxRetryAttempts {
				p.Classification = ClassSkip
			} else {
				p.Classification = ClassRetry
			}
		default:
			p.Classification = ClassNew
		}
		planned = append(planned, p)
	}
	return planned, nil
}

func expand(ctx context.Context, spec string, now time.Time, files LocalFileLister) ([]Month, error) {
	switch {
	case spec == "":
		months, err := files.ExistingMonths(ctx)
		if err != nil {
			return nil, errs.New(errs.Config, fmt.Errorf("list existing local months: %w", err))
		}
		sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
		return months, nil

	case spec == "all":
		return allMonths(now), nil

	case strings.HasPrefix(spec, "last_") && strings.HasSuffix(spec, "_months"):
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(spec, "last_"), "_months"))
		if err != nil || n <= 0 {
			return nil, errs.New(errs.Config, fmt.Errorf("invalid backfill spec %q", spec))
		}
		return lastNMonths(now, n), nil

	default:
		return explicitMonths(spec)
	}
}

// allMonths returns every month in [2009-01, now's-month - 1].
func allMonths(now time.Time) []Month {
	start := Month{Year: 2009, Month: 1}
	end := previousMonth(now)

	var months []Month
	for m := start; !end.Before(m); m = nextMonth(m) {
		months = append(months, m)
	}
	return months
}

// lastNMonths returns the n calendar months strictly preceding now's
// month, ascending.
func lastNMonths(now time.Time, n int) []Month {
	cursor := previousMonth(now)
	months := make([]Month, n)
	for i := n - 1; i >= 0; i-- {
		months[i] = cursor
		cursor = previousMonth(time.Date(cursor.Year, time.Month(cursor.Month), 1, 0, 0, 0, 0, time.UTC))
	}
	return months
}

func previousMonth(t time.Time) Month {
	prev := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return Month{Year: prev.Year(), Month: int(prev.Month())}
}

func nextMonth(m Month) Month {
	t := time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return Month{Year: t.Year(), Month: int(t.Month())}
}

func explicitMonths(spec string) ([]Month, error) {
	parts := strings.Split(spec, ",")
	months := make([]Month, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) != 7 || p[4] != '-' {
			return nil, errs.New(errs.Config, fmt.Errorf("invalid backfill spec month %q", p))
		}
		year, err := strconv.Atoi(p[:4])
		if err != nil {
			return nil, errs.New(errs.Config, fmt.Errorf("invalid year in %q", p))
		}
		month, err := strconv.Atoi(p[5:])
		if err != nil || month < 1 || month > 12 {
			return nil, errs.New(errs.Config, fmt.Errorf("invalid month in %q", p))
		}
		months = append(months, Month{Year: year, Month: month})
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months, nil
}
