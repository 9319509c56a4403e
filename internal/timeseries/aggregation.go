package timeseries

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// The aggregation engine compresses one previous-period window at a time.
// Coarser granularities roll up from the next finer rollups when any exist
// in the window; unique counts are then summed additively across the finer
// buckets, which over-counts a viewer appearing in more than one of them.
// This approximation is the accepted trade-off for avoiding raw-table scans.

type viewGroupResult struct {
	BlogID            uint
	CountryID         uint
	AuthorID          uint
	ViewCount         int
	UniqueBlogsViewed int
	UniqueUsers       int
}

type creationGroupResult struct {
	CountryID uint
	AuthorID  uint
	BlogCount int
}

// AggregateViews rolls up blog views for the period immediately preceding
// now at the given granularity. Idempotent: re-running the same window
// overwrites the same rows. Returns the number of rows written.
func AggregateViews(db *gorm.DB, logger *slog.Logger, g Granularity) (int, error) {
	start, end, err := PreviousPeriodBounds(time.Now().UTC(), g)
	if err != nil {
		return 0, err
	}
	return aggregateViewsWindow(db, logger, g, start, end)
}

// AggregateCreations rolls up blog creations for the period immediately
// preceding now at the given granularity. Same contract as AggregateViews.
func AggregateCreations(db *gorm.DB, logger *slog.Logger, g Granularity) (int, error) {
	start, end, err := PreviousPeriodBounds(time.Now().UTC(), g)
	if err != nil {
		return 0, err
	}
	return aggregateCreationsWindow(db, logger, g, start, end)
}

// AggregateRange backfills views and creations bucket by bucket over
// [from, to) at the given granularity. Returns the total rows written.
func AggregateRange(db *gorm.DB, logger *slog.Logger, g Granularity, from, to time.Time) (int, error) {
	switch g {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedGranularity, g)
	}

	written := 0
	for bucket := BucketStart(from, g); bucket.Before(to); bucket = NextBucket(bucket, g) {
		end := NextBucket(bucket, g)

		n, err := aggregateViewsWindow(db, logger, g, bucket, end)
		if err != nil {
			return written, fmt.Errorf("backfill views at %s: %w", bucket.Format(time.RFC3339), err)
		}
		written += n

		n, err = aggregateCreationsWindow(db, logger, g, bucket, end)
		if err != nil {
			return written, fmt.Errorf("backfill creations at %s: %w", bucket.Format(time.RFC3339), err)
		}
		written += n
	}

	logger.Info("Backfill completed",
		slog.String("granularity", string(g)),
		slog.Time("from", from),
		slog.Time("to", to),
		slog.Int("rows", written))
	return written, nil
}

func aggregateViewsWindow(db *gorm.DB, logger *slog.Logger, g Granularity, start, end time.Time) (int, error) {
	bucket := start

	var results []viewGroupResult
	var totals viewGroupResult
	var haveSource bool

	finer := g.Finer()
	if finer != GranularityRaw && finerViewRollupsExist(db, finer, start, end) {
		if err := db.Raw(`
			SELECT blog_id, country_id, author_id,
			       SUM(view_count) AS view_count,
			       SUM(unique_blogs_viewed) AS unique_blogs_viewed,
			       SUM(unique_users) AS unique_users
			FROM view_rollups
			WHERE granularity = ? AND bucket >= ? AND bucket < ?
			  AND NOT (blog_id = 0 AND country_id = 0 AND author_id = 0)
			GROUP BY blog_id, country_id, author_id
		`, finer, start, end).Scan(&results).Error; err != nil {
			return 0, fmt.Errorf("failed to group finer view rollups: %w", err)
		}

		if err := db.Raw(`
			SELECT COALESCE(SUM(view_count), 0) AS view_count,
			       COALESCE(SUM(unique_blogs_viewed), 0) AS unique_blogs_viewed,
			       COALESCE(SUM(unique_users), 0) AS unique_users
			FROM view_rollups
			WHERE granularity = ? AND bucket >= ? AND bucket < ?
			  AND blog_id = 0 AND country_id = 0 AND author_id = 0
		`, finer, start, end).Scan(&totals).Error; err != nil {
			return 0, fmt.Errorf("failed to sum finer view totals: %w", err)
		}
		haveSource = len(results) > 0
	} else {
		if err := db.Raw(`
			SELECT b.id AS blog_id,
			       COALESCE(b.country_id, 0) AS country_id,
			       b.author_id AS author_id,
			       COUNT(v.id) AS view_count,
			       COUNT(DISTINCT v.blog_id) AS unique_blogs_viewed,
			       COUNT(DISTINCT v.user_id) AS unique_users
			FROM blog_views v
			JOIN blogs b ON b.id = v.blog_id
			WHERE v.viewed_at >= ? AND v.viewed_at < ?
			GROUP BY b.id, b.country_id, b.author_id
		`, start, end).Scan(&results).Error; err != nil {
			return 0, fmt.Errorf("failed to group raw views: %w", err)
		}

		if err := db.Raw(`
			SELECT COUNT(v.id) AS view_count,
			       COUNT(DISTINCT v.blog_id) AS unique_blogs_viewed,
			       COUNT(DISTINCT v.user_id) AS unique_users
			FROM blog_views v
			WHERE v.viewed_at >= ? AND v.viewed_at < ?
		`, start, end).Scan(&totals).Error; err != nil {
			return 0, fmt.Errorf("failed to sum raw views: %w", err)
		}
		haveSource = len(results) > 0
	}

	if !haveSource {
		logger.Debug("No views to aggregate",
			slog.String("granularity", string(g)),
			slog.Time("bucket", bucket))
		return 0, nil
	}

	written := 0
	for _, r := range results {
		m := ViewMetrics{
			ViewCount:         r.ViewCount,
			UniqueBlogsViewed: r.UniqueBlogsViewed,
			UniqueUsers:       r.UniqueUsers,
		}
		if err := UpsertViewRollup(db, g, bucket, r.BlogID, r.CountryID, r.AuthorID, m); err != nil {
			return written, fmt.Errorf("failed to upsert view rollup: %w", err)
		}
		written++
	}

	totalMetrics := ViewMetrics{
		ViewCount:         totals.ViewCount,
		UniqueBlogsViewed: totals.UniqueBlogsViewed,
		UniqueUsers:       totals.UniqueUsers,
	}
	if err := UpsertViewRollup(db, g, bucket, 0, 0, 0, totalMetrics); err != nil {
		return written, fmt.Errorf("failed to upsert view totals: %w", err)
	}
	written++

	logger.Info("Aggregated views",
		slog.String("granularity", string(g)),
		slog.Time("bucket", bucket),
		slog.Int("rows", written))
	return written, nil
}

func aggregateCreationsWindow(db *gorm.DB, logger *slog.Logger, g Granularity, start, end time.Time) (int, error) {
	bucket := start

	var results []creationGroupResult
	var total int

	finer := g.Finer()
	if finer != GranularityRaw && finerCreationRollupsExist(db, finer, start, end) {
		if err := db.Raw(`
			SELECT country_id, author_id, SUM(blog_count) AS blog_count
			FROM creation_rollups
			WHERE granularity = ? AND bucket >= ? AND bucket < ?
			  AND NOT (country_id = 0 AND author_id = 0)
			GROUP BY country_id, author_id
		`, finer, start, end).Scan(&results).Error; err != nil {
			return 0, fmt.Errorf("failed to group finer creation rollups: %w", err)
		}

		if err := db.Raw(`
			SELECT COALESCE(SUM(blog_count), 0)
			FROM creation_rollups
			WHERE granularity = ? AND bucket >= ? AND bucket < ?
			  AND country_id = 0 AND author_id = 0
		`, finer, start, end).Scan(&total).Error; err != nil {
			return 0, fmt.Errorf("failed to sum finer creation totals: %w", err)
		}
	} else {
		if err := db.Raw(`
			SELECT COALESCE(b.country_id, 0) AS country_id,
			       b.author_id AS author_id,
			       COUNT(b.id) AS blog_count
			FROM blogs b
			WHERE b.created_at >= ? AND b.created_at < ?
			GROUP BY b.country_id, b.author_id
		`, start, end).Scan(&results).Error; err != nil {
			return 0, fmt.Errorf("failed to group raw creations: %w", err)
		}

		if err := db.Raw(`
			SELECT COUNT(id) FROM blogs WHERE created_at >= ? AND created_at < ?
		`, start, end).Scan(&total).Error; err != nil {
			return 0, fmt.Errorf("failed to count raw creations: %w", err)
		}
	}

	if len(results) == 0 {
		logger.Debug("No creations to aggregate",
			slog.String("granularity", string(g)),
			slog.Time("bucket", bucket))
		return 0, nil
	}

	written := 0
	for _, r := range results {
		if err := UpsertCreationRollup(db, g, bucket, r.CountryID, r.AuthorID, r.BlogCount); err != nil {
			return written, fmt.Errorf("failed to upsert creation rollup: %w", err)
		}
		written++
	}

	if err := UpsertCreationRollup(db, g, bucket, 0, 0, total); err != nil {
		return written, fmt.Errorf("failed to upsert creation totals: %w", err)
	}
	written++

	logger.Info("Aggregated creations",
		slog.String("granularity", string(g)),
		slog.Time("bucket", bucket),
		slog.Int("rows", written))
	return written, nil
}

func finerViewRollupsExist(db *gorm.DB, finer Granularity, start, end time.Time) bool {
	var n int64
	db.Model(&ViewRollup{}).
		Where("granularity = ? AND bucket >= ? AND bucket < ?", finer, start, end).
		Count(&n)
	return n > 0
}

func finerCreationRollupsExist(db *gorm.DB, finer Granularity, start, end time.Time) bool {
	var n int64
	db.Model(&CreationRollup{}).
		Where("granularity = ? AND bucket >= ? AND bucket < ?", finer, start, end).
		Count(&n)
	return n > 0
}
