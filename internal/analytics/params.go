// Package analytics serves the top-N, breakdown and performance queries
// over raw views and the rollup tables. One parameterized engine per query
// kind, driven by per-dimension configuration instead of per-dimension
// rewrites.
package analytics

import (
	"errors"
	"fmt"
	"time"

	"bloglytics/internal/config"
	"bloglytics/internal/filters"
)

// ErrInvalidDate marks an unparsable date bound in a query request.
var ErrInvalidDate = errors.New("invalid date")

// ErrInvalidDimension marks an unknown dimension token.
var ErrInvalidDimension = errors.New("invalid dimension")

const dateLayout = "2006-01-02"

// Params carries the query inputs shared by the three services.
type Params struct {
	Filters     *filters.Node
	Start       string
	End         string
	Limit       int
	AuthorID    *uint
	Granularity string
}

// Defaults is the configuration slice the query layer needs, passed in
// explicitly instead of read from ambient state.
type Defaults struct {
	TopLimit int
	PageSize int
}

// DefaultsFromConfig extracts query defaults from the application config.
func DefaultsFromConfig(cfg *config.Config) Defaults {
	return Defaults{
		TopLimit: cfg.DefaultTopLimit,
		PageSize: cfg.DefaultPageSize,
	}
}

// Row is one x/y/z response row for top and breakdown queries.
type Row struct {
	X string `json:"x"`
	Y int64  `json:"y"`
	Z int64  `json:"z"`
}

// PerformanceRow is one x/y/z response row for performance queries. Z is
// the growth percentage, null where growth is undefined.
type PerformanceRow struct {
	X string   `json:"x"`
	Y int64    `json:"y"`
	Z *float64 `json:"z"`
}

// timeRange parses the optional date bounds into a half-open window
// [from, to). The end date is inclusive, so the window runs to the start of
// the following day. A zero time leaves that side of the window open.
func (p Params) timeRange() (time.Time, time.Time, error) {
	var from, to time.Time

	if p.Start != "" {
		parsed, err := time.Parse(dateLayout, p.Start)
		if err != nil {
			return from, to, fmt.Errorf("%w: start %q", ErrInvalidDate, p.Start)
		}
		from = parsed.UTC()
	}

	if p.End != "" {
		parsed, err := time.Parse(dateLayout, p.End)
		if err != nil {
			return from, to, fmt.Errorf("%w: end %q", ErrInvalidDate, p.End)
		}
		to = parsed.UTC().AddDate(0, 0, 1)
	}

	return from, to, nil
}
