package timeseries

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"bloglytics/internal/filters"
)

// ViewMetrics carries the aggregated values for one view rollup row.
type ViewMetrics struct {
	ViewCount         int
	UniqueBlogsViewed int
	UniqueUsers       int
}

// UpsertViewRollup writes one view rollup row atomically. A conflicting key
// overwrites the stored metrics with the latest values; it never increments.
func UpsertViewRollup(tx *gorm.DB, g Granularity, bucket time.Time, blogID, countryID, authorID uint, m ViewMetrics) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO view_rollups (granularity, bucket, blog_id, country_id, author_id, view_count, unique_blogs_viewed, unique_users, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (granularity, bucket, blog_id, country_id, author_id) DO UPDATE SET
			view_count = ?,
			unique_blogs_viewed = ?,
			unique_users = ?,
			updated_at = ?
	`
	return tx.Exec(query,
		g, bucket.UTC(), blogID, countryID, authorID,
		m.ViewCount, m.UniqueBlogsViewed, m.UniqueUsers, now, now,
		m.ViewCount, m.UniqueBlogsViewed, m.UniqueUsers, now).Error
}

// UpsertCreationRollup writes one creation rollup row atomically with the
// same overwrite semantics as UpsertViewRollup.
func UpsertCreationRollup(tx *gorm.DB, g Granularity, bucket time.Time, countryID, authorID uint, blogCount int) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO creation_rollups (granularity, bucket, country_id, author_id, blog_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (granularity, bucket, country_id, author_id) DO UPDATE SET
			blog_count = ?,
			updated_at = ?
	`
	return tx.Exec(query,
		g, bucket.UTC(), countryID, authorID, blogCount, now, now,
		blogCount, now).Error
}

// BucketSum is one per-bucket total from a rollup range read.
type BucketSum struct {
	Bucket time.Time
	Total  int64
}

// RollupScope narrows a rollup range read. With no author and no predicate
// the read covers only the all-dimensions totals rows; with either, it sums
// the matching per-dimension rows instead (each view is counted once there,
// since every per-dimension row carries the full dimension tuple).
type RollupScope struct {
	AuthorID *uint
	Pred     *filters.Predicate
}

func (s RollupScope) dimensional() bool {
	return s.AuthorID != nil || s.Pred != nil
}

// SumViewsByBucket sums view counts per bucket over [from, to).
func SumViewsByBucket(db *gorm.DB, g Granularity, from, to time.Time, scope RollupScope) ([]BucketSum, error) {
	query := db.Model(&ViewRollup{}).
		Select("bucket, SUM(view_count) AS total").
		Where("granularity = ? AND bucket >= ? AND bucket < ?", g, from.UTC(), to.UTC())

	if scope.dimensional() {
		query = query.Where("blog_id <> 0")
		if scope.AuthorID != nil {
			query = query.Where("author_id = ?", *scope.AuthorID)
		}
		if scope.Pred != nil {
			query = query.Where(scope.Pred.SQL, scope.Pred.Args...)
		}
	} else {
		query = query.Where("blog_id = 0 AND country_id = 0 AND author_id = 0")
	}

	var sums []BucketSum
	if err := query.Group("bucket").Order("bucket ASC").Scan(&sums).Error; err != nil {
		return nil, fmt.Errorf("failed to sum view rollups: %w", err)
	}
	return sums, nil
}

// SumCreationsByBucket sums created-blog counts per bucket over [from, to),
// with the same scope handling as SumViewsByBucket.
func SumCreationsByBucket(db *gorm.DB, g Granularity, from, to time.Time, scope RollupScope) ([]BucketSum, error) {
	query := db.Model(&CreationRollup{}).
		Select("bucket, SUM(blog_count) AS total").
		Where("granularity = ? AND bucket >= ? AND bucket < ?", g, from.UTC(), to.UTC())

	if scope.dimensional() {
		query = query.Where("NOT (country_id = 0 AND author_id = 0)")
		if scope.AuthorID != nil {
			query = query.Where("author_id = ?", *scope.AuthorID)
		}
		if scope.Pred != nil {
			query = query.Where(scope.Pred.SQL, scope.Pred.Args...)
		}
	} else {
		query = query.Where("country_id = 0 AND author_id = 0")
	}

	var sums []BucketSum
	if err := query.Group("bucket").Order("bucket ASC").Scan(&sums).Error; err != nil {
		return nil, fmt.Errorf("failed to sum creation rollups: %w", err)
	}
	return sums, nil
}

// RollupFieldColumns is the filter-path allowlist for predicates applied to
// rollup rows. Rollups store dimension ids only, so only id paths resolve.
var RollupFieldColumns = map[string]string{
	"blog.id":    "blog_id",
	"country.id": "country_id",
	"author.id":  "author_id",
}
