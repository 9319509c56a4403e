// Package timeseries owns bucket semantics, the rollup tables and the
// aggregation engine that compresses raw events into them.
package timeseries

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedGranularity marks an unknown or non-aggregatable granularity
// token at any entry point.
var ErrUnsupportedGranularity = errors.New("unsupported granularity")

// Granularity is the time-unit resolution of a rollup bucket.
type Granularity string

const (
	GranularityRaw   Granularity = "raw"
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// AggregatedGranularities lists the bucket sizes the engine materializes,
// finest first.
var AggregatedGranularities = []Granularity{
	GranularityHour,
	GranularityDay,
	GranularityWeek,
	GranularityMonth,
	GranularityYear,
}

// ParseGranularity validates a granularity token.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityRaw, GranularityHour, GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedGranularity, s)
	}
}

// Finer returns the next finer aggregated granularity, or raw below hour.
func (g Granularity) Finer() Granularity {
	switch g {
	case GranularityYear:
		return GranularityMonth
	case GranularityMonth:
		return GranularityWeek
	case GranularityWeek:
		return GranularityDay
	case GranularityDay:
		return GranularityHour
	default:
		return GranularityRaw
	}
}

// BucketStart truncates a timestamp to the start of the enclosing unit in
// UTC. Weeks are ISO weeks starting Monday. Stable and monotonic; raw or
// unknown granularities pass the timestamp through.
func BucketStart(t time.Time, g Granularity) time.Time {
	utc := t.UTC()
	year, month, day := utc.Year(), utc.Month(), utc.Day()

	switch g {
	case GranularityYear:
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	case GranularityMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	case GranularityWeek:
		weekday := int(utc.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		daysToSubtract := weekday - 1
		return time.Date(year, month, day-daysToSubtract, 0, 0, 0, 0, time.UTC)
	case GranularityDay:
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	case GranularityHour:
		return time.Date(year, month, day, utc.Hour(), 0, 0, 0, time.UTC)
	default:
		return utc
	}
}

// NextBucket advances a bucket start by one unit of its granularity.
func NextBucket(bucket time.Time, g Granularity) time.Time {
	switch g {
	case GranularityYear:
		return bucket.AddDate(1, 0, 0)
	case GranularityMonth:
		return bucket.AddDate(0, 1, 0)
	case GranularityWeek:
		return bucket.AddDate(0, 0, 7)
	case GranularityDay:
		return bucket.AddDate(0, 0, 1)
	case GranularityHour:
		return bucket.Add(time.Hour)
	default:
		return bucket
	}
}

// PreviousPeriodBounds returns the half-open window [start, end) of the
// single calendar period immediately preceding the one containing now.
func PreviousPeriodBounds(now time.Time, g Granularity) (time.Time, time.Time, error) {
	switch g {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedGranularity, g)
	}

	currentStart := BucketStart(now, g)
	var previousStart time.Time
	switch g {
	case GranularityYear:
		previousStart = currentStart.AddDate(-1, 0, 0)
	case GranularityMonth:
		previousStart = currentStart.AddDate(0, -1, 0)
	case GranularityWeek:
		previousStart = currentStart.AddDate(0, 0, -7)
	case GranularityDay:
		previousStart = currentStart.AddDate(0, 0, -1)
	case GranularityHour:
		previousStart = currentStart.Add(-time.Hour)
	}

	return previousStart, currentStart, nil
}

// DetectGranularity picks a display granularity from a date range span in
// whole days. Advisory only: missing or unparsable bounds fall back to
// month, a reversed range falls back to day. It never fails.
func DetectGranularity(start, end string) Granularity {
	if start == "" || end == "" {
		return GranularityMonth
	}

	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return GranularityMonth
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return GranularityMonth
	}

	days := int(to.Sub(from).Hours() / 24)
	switch {
	case days <= 0:
		return GranularityDay
	case days <= 7:
		return GranularityDay
	case days <= 30:
		return GranularityWeek
	case days <= 365:
		return GranularityMonth
	default:
		return GranularityYear
	}
}

// FormatPeriod renders a bucket start as the period label used in API rows:
// ISO week notation for weeks, truncated dates otherwise.
func FormatPeriod(bucket time.Time, g Granularity) string {
	switch g {
	case GranularityYear:
		return bucket.Format("2006")
	case GranularityMonth:
		return bucket.Format("2006-01")
	case GranularityWeek:
		isoYear, isoWeek := bucket.ISOWeek()
		return fmt.Sprintf("%d-W%02d", isoYear, isoWeek)
	case GranularityHour:
		return bucket.Format("2006-01-02 15:00")
	default:
		return bucket.Format("2006-01-02")
	}
}
