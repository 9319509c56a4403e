package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"bloglytics/internal/timeseries"
)

// breakdownDimension configures the grouped-breakdown engine for one
// dimension.
type breakdownDimension struct {
	labelExpr  string
	codeExpr   string
	groupExpr  string
	extraWhere string
}

var breakdownDimensions = map[string]breakdownDimension{
	"country": {
		labelExpr:  "c.name",
		codeExpr:   "c.code",
		groupExpr:  "c.id, c.name, c.code",
		extraWhere: "b.country_id IS NOT NULL",
	},
	"user": {
		labelExpr: "a.username",
		codeExpr:  "''",
		groupExpr: "a.id, a.username",
	},
}

// periodExpr buckets v.viewed_at in SQL. Week uses the Monday-start date
// arithmetic so its lexicographic order matches chronological order, same
// as the other formats.
func periodExpr(g timeseries.Granularity) string {
	switch g {
	case timeseries.GranularityYear:
		return "strftime('%Y', v.viewed_at)"
	case timeseries.GranularityMonth:
		return "strftime('%Y-%m', v.viewed_at)"
	case timeseries.GranularityWeek:
		return "date(v.viewed_at, 'start of day', '-' || ((strftime('%w', v.viewed_at) + 6) % 7) || ' days')"
	case timeseries.GranularityHour:
		return "strftime('%Y-%m-%d %H:00', v.viewed_at)"
	default:
		return "strftime('%Y-%m-%d', v.viewed_at)"
	}
}

// displayPeriod converts the SQL period key into the label form. Only weeks
// differ: the grouped Monday date becomes ISO week notation.
func displayPeriod(period string, g timeseries.Granularity) string {
	if g != timeseries.GranularityWeek {
		return period
	}
	monday, err := time.Parse("2006-01-02", period)
	if err != nil {
		return period
	}
	return timeseries.FormatPeriod(monday, g)
}

type breakdownQueryResult struct {
	Label  string
	Code   string
	Period string
	Y      int64
	Z      int64
}

// Breakdown groups views by (dimension value, period) jointly: one row per
// combination, X = "label - period", Y = distinct blogs, Z = total views.
// Rows are ordered by period ascending, then views descending. The period
// granularity is auto-selected from the range span unless set explicitly.
func Breakdown(db *gorm.DB, dimension string, params Params) ([]Row, error) {
	dim, ok := breakdownDimensions[dimension]
	if !ok {
		return nil, fmt.Errorf("%w: %q for breakdown query", ErrInvalidDimension, dimension)
	}

	from, to, err := params.timeRange()
	if err != nil {
		return nil, err
	}

	granularity := timeseries.DetectGranularity(params.Start, params.End)
	if params.Granularity != "" {
		parsed, err := timeseries.ParseGranularity(params.Granularity)
		if err != nil {
			return nil, err
		}
		if parsed == timeseries.GranularityRaw {
			return nil, fmt.Errorf("%w: raw is not a breakdown granularity", timeseries.ErrUnsupportedGranularity)
		}
		granularity = parsed
	}

	pred, err := compileViewFilters(params.Filters)
	if err != nil {
		return nil, err
	}

	where := "1 = 1"
	var args []any
	if !from.IsZero() {
		where += " AND v.viewed_at >= ?"
		args = append(args, from)
	}
	if !to.IsZero() {
		where += " AND v.viewed_at < ?"
		args = append(args, to)
	}
	if pred != nil {
		where += " AND (" + pred.SQL + ")"
		args = append(args, pred.Args...)
	}
	if dim.extraWhere != "" {
		where += " AND " + dim.extraWhere
	}

	query := fmt.Sprintf(`
		SELECT %s AS label, %s AS code, %s AS period,
		       COUNT(DISTINCT v.blog_id) AS y, COUNT(v.id) AS z
		%s
		WHERE %s
		GROUP BY %s, period
		ORDER BY period ASC, z DESC
	`, dim.labelExpr, dim.codeExpr, periodExpr(granularity), viewQueryBase, where, dim.groupExpr)

	var results []breakdownQueryResult
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("breakdown %s query failed: %w", dimension, err)
	}

	rows := make([]Row, len(results))
	for i, r := range results {
		label := r.Label
		if dimension == "country" {
			label = countryLabel(r.Label, r.Code)
		}
		rows[i] = Row{
			X: label + " - " + displayPeriod(r.Period, granularity),
			Y: r.Y,
			Z: r.Z,
		}
	}
	return rows, nil
}
