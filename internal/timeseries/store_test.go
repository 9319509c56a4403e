package timeseries_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloglytics/internal/filters"
	"bloglytics/internal/testsupport"
	"bloglytics/internal/timeseries"
)

func TestUpsertViewRollupOverwrites(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	bucket := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	first := timeseries.ViewMetrics{ViewCount: 10, UniqueBlogsViewed: 2, UniqueUsers: 4}
	require.NoError(t, timeseries.UpsertViewRollup(db, timeseries.GranularityDay, bucket, 1, 2, 3, first))

	// Same key again with different metrics replaces, never increments
	second := timeseries.ViewMetrics{ViewCount: 7, UniqueBlogsViewed: 1, UniqueUsers: 3}
	require.NoError(t, timeseries.UpsertViewRollup(db, timeseries.GranularityDay, bucket, 1, 2, 3, second))

	var rows []timeseries.ViewRollup
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].ViewCount)
	assert.Equal(t, 1, rows[0].UniqueBlogsViewed)
	assert.Equal(t, 3, rows[0].UniqueUsers)
	assert.Equal(t, uint(1), rows[0].BlogID)
	assert.False(t, rows[0].IsTotals())
}

func TestUpsertViewRollupDistinguishesZeroSentinel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	bucket := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	m := timeseries.ViewMetrics{ViewCount: 5}

	require.NoError(t, timeseries.UpsertViewRollup(db, timeseries.GranularityDay, bucket, 1, 0, 2, m))
	require.NoError(t, timeseries.UpsertViewRollup(db, timeseries.GranularityDay, bucket, 0, 0, 0, m))
	// Re-running the totals row must hit the conflict branch, not insert
	require.NoError(t, timeseries.UpsertViewRollup(db, timeseries.GranularityDay, bucket, 0, 0, 0, m))

	var count int64
	require.NoError(t, db.Model(&timeseries.ViewRollup{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var totals timeseries.ViewRollup
	require.NoError(t, db.Where("blog_id = 0 AND country_id = 0 AND author_id = 0").First(&totals).Error)
	assert.True(t, totals.IsTotals())
}

func TestUpsertCreationRollupOverwrites(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	bucket := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, timeseries.UpsertCreationRollup(db, timeseries.GranularityMonth, bucket, 1, 2, 3))
	require.NoError(t, timeseries.UpsertCreationRollup(db, timeseries.GranularityMonth, bucket, 1, 2, 5))

	var rows []timeseries.CreationRollup
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].BlogCount)
}

func TestSumViewsByBucketScopes(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	g := timeseries.GranularityDay
	day1 := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	// Two blogs by two authors on day1, one on day2, plus totals rows
	require.NoError(t, timeseries.UpsertViewRollup(db, g, day1, 1, 10, 100, timeseries.ViewMetrics{ViewCount: 6}))
	require.NoError(t, timeseries.UpsertViewRollup(db, g, day1, 2, 10, 200, timeseries.ViewMetrics{ViewCount: 4}))
	require.NoError(t, timeseries.UpsertViewRollup(db, g, day1, 0, 0, 0, timeseries.ViewMetrics{ViewCount: 10}))
	require.NoError(t, timeseries.UpsertViewRollup(db, g, day2, 1, 10, 100, timeseries.ViewMetrics{ViewCount: 3}))
	require.NoError(t, timeseries.UpsertViewRollup(db, g, day2, 0, 0, 0, timeseries.ViewMetrics{ViewCount: 3}))

	from := day1
	to := day2.AddDate(0, 0, 1)

	t.Run("unscoped reads totals rows", func(t *testing.T) {
		sums, err := timeseries.SumViewsByBucket(db, g, from, to, timeseries.RollupScope{})
		require.NoError(t, err)
		require.Len(t, sums, 2)
		assert.Equal(t, int64(10), sums[0].Total)
		assert.Equal(t, int64(3), sums[1].Total)
	})

	t.Run("author scope sums per-dimension rows", func(t *testing.T) {
		authorID := uint(100)
		sums, err := timeseries.SumViewsByBucket(db, g, from, to, timeseries.RollupScope{AuthorID: &authorID})
		require.NoError(t, err)
		require.Len(t, sums, 2)
		assert.Equal(t, int64(6), sums[0].Total)
		assert.Equal(t, int64(3), sums[1].Total)
	})

	t.Run("predicate scope", func(t *testing.T) {
		pred := &filters.Predicate{SQL: "blog_id = ?", Args: []any{2}}
		sums, err := timeseries.SumViewsByBucket(db, g, from, to, timeseries.RollupScope{Pred: pred})
		require.NoError(t, err)
		require.Len(t, sums, 1)
		assert.Equal(t, int64(4), sums[0].Total)
	})

	t.Run("window excludes buckets outside range", func(t *testing.T) {
		sums, err := timeseries.SumViewsByBucket(db, g, day1, day2, timeseries.RollupScope{})
		require.NoError(t, err)
		require.Len(t, sums, 1)
		assert.Equal(t, int64(10), sums[0].Total)
	})
}

func TestSumCreationsByBucketScopes(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	g := timeseries.GranularityMonth
	month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, timeseries.UpsertCreationRollup(db, g, month, 10, 100, 2))
	require.NoError(t, timeseries.UpsertCreationRollup(db, g, month, 20, 200, 1))
	require.NoError(t, timeseries.UpsertCreationRollup(db, g, month, 0, 0, 3))

	from := month
	to := month.AddDate(0, 1, 0)

	sums, err := timeseries.SumCreationsByBucket(db, g, from, to, timeseries.RollupScope{})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, int64(3), sums[0].Total)

	authorID := uint(200)
	sums, err = timeseries.SumCreationsByBucket(db, g, from, to, timeseries.RollupScope{AuthorID: &authorID})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, int64(1), sums[0].Total)
}
