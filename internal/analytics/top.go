package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// viewQueryBase is the joined shape every raw-view query runs against.
// Aliases: v = blog_views, b = blogs, a = authors, c = countries.
const viewQueryBase = `
	FROM blog_views v
	JOIN blogs b ON b.id = v.blog_id
	JOIN authors a ON a.id = b.author_id
	LEFT JOIN countries c ON c.id = b.country_id
`

// topDimension configures the top-N engine for one dimension. The SQL
// fragments are fixed per dimension and never carry request input.
type topDimension struct {
	labelExpr     string
	codeExpr      string
	secondaryExpr string
	groupExpr     string
	tieBreakExpr  string
	extraWhere    string
}

var topDimensions = map[string]topDimension{
	"blog": {
		labelExpr:     "b.title",
		codeExpr:      "''",
		secondaryExpr: "b.id",
		groupExpr:     "b.id, b.title",
		tieBreakExpr:  "b.id",
	},
	"country": {
		labelExpr:     "c.name",
		codeExpr:      "c.code",
		secondaryExpr: "COUNT(DISTINCT v.blog_id)",
		groupExpr:     "c.id, c.name, c.code",
		tieBreakExpr:  "c.id",
		extraWhere:    "b.country_id IS NOT NULL",
	},
	"user": {
		labelExpr:     "a.username",
		codeExpr:      "''",
		secondaryExpr: "COUNT(DISTINCT v.blog_id)",
		groupExpr:     "a.id, a.username",
		tieBreakExpr:  "a.id",
	},
}

type topQueryResult struct {
	Label string
	Code  string
	Y     int64
	Z     int64
}

// Top ranks a dimension by total views descending, ties broken by storage
// order. Y is the blog id for the blog dimension and the distinct blog
// count for country and user.
func Top(db *gorm.DB, dimension string, params Params, defaults Defaults) ([]Row, error) {
	dim, ok := topDimensions[dimension]
	if !ok {
		return nil, fmt.Errorf("%w: %q for top query", ErrInvalidDimension, dimension)
	}

	from, to, err := params.timeRange()
	if err != nil {
		return nil, err
	}

	pred, err := compileViewFilters(params.Filters)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaults.TopLimit
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
		SELECT %s AS label, %s AS code, %s AS y, COUNT(v.id) AS z
		%s
		WHERE %s
		GROUP BY %s
		ORDER BY z DESC, %s ASC
		LIMIT ?
	`, dim.labelExpr, dim.codeExpr, dim.secondaryExpr, viewQueryBase, where, dim.groupExpr, dim.tieBreakExpr)
	args = append(args, limit)

	var results []topQueryResult
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("top %s query failed: %w", dimension, err)
	}

	rows := make([]Row, len(results))
	for i, r := range results {
		label := r.Label
		if dimension == "country" {
			label = countryLabel(r.Label, r.Code)
		}
		rows[i] = Row{X: label, Y: r.Y, Z: r.Z}
	}
	return rows, nil
}
