package timeseries_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloglytics/internal/blogs"
	"bloglytics/internal/testsupport"
	"bloglytics/internal/timeseries"
)

func TestAggregateRangeFromRawViews(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	us := testsupport.CreateTestCountry(db, "US", "United States", "North America")
	de := testsupport.CreateTestCountry(db, "DE", "Germany", "Europe")
	alice := testsupport.CreateTestAuthor(t, db, "alice", "password")
	bob := testsupport.CreateTestAuthor(t, db, "bob", "password")

	created := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	b1 := testsupport.CreateTestBlog(t, db, "First", alice.ID, &us.ID, created)
	b2 := testsupport.CreateTestBlog(t, db, "Second", bob.ID, &de.ID, created)
	b3 := testsupport.CreateTestBlog(t, db, "Third", alice.ID, nil, created)

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	testsupport.CreateTestView(t, db, b1.ID, testsupport.UintPtr(1), day.Add(10*time.Hour))
	testsupport.CreateTestView(t, db, b1.ID, testsupport.UintPtr(1), day.Add(11*time.Hour))
	testsupport.CreateTestView(t, db, b1.ID, testsupport.UintPtr(2), day.Add(12*time.Hour))
	testsupport.CreateTestView(t, db, b2.ID, nil, day.Add(9*time.Hour))
	testsupport.CreateTestView(t, db, b2.ID, testsupport.UintPtr(3), day.Add(15*time.Hour))
	testsupport.CreateTestView(t, db, b3.ID, testsupport.UintPtr(2), day.Add(20*time.Hour))

	rows, err := timeseries.AggregateRange(db, logger, timeseries.GranularityDay, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	// Three per-blog rows plus the totals row; no blogs were created that day
	assert.Equal(t, 4, rows)

	var totals timeseries.ViewRollup
	require.NoError(t, db.
		Where("granularity = ? AND blog_id = 0 AND country_id = 0 AND author_id = 0", timeseries.GranularityDay).
		First(&totals).Error)
	assert.Equal(t, 6, totals.ViewCount)
	assert.Equal(t, 3, totals.UniqueBlogsViewed)
	assert.Equal(t, 3, totals.UniqueUsers) // anonymous view carries no user

	var b1Row timeseries.ViewRollup
	require.NoError(t, db.
		Where("granularity = ? AND blog_id = ?", timeseries.GranularityDay, b1.ID).
		First(&b1Row).Error)
	assert.Equal(t, 3, b1Row.ViewCount)
	assert.Equal(t, 1, b1Row.UniqueBlogsViewed)
	assert.Equal(t, 2, b1Row.UniqueUsers)
	assert.Equal(t, us.ID, b1Row.CountryID)
	assert.Equal(t, alice.ID, b1Row.AuthorID)

	// Blog without a country lands in the zero-sentinel country
	var b3Row timeseries.ViewRollup
	require.NoError(t, db.
		Where("granularity = ? AND blog_id = ?", timeseries.GranularityDay, b3.ID).
		First(&b3Row).Error)
	assert.Equal(t, uint(0), b3Row.CountryID)
}

func TestAggregateRangeIsIdempotent(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	alice := testsupport.CreateTestAuthor(t, db, "alice", "password")
	blog := testsupport.CreateTestBlog(t, db, "Only", alice.ID, nil, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	testsupport.CreateTestView(t, db, blog.ID, testsupport.UintPtr(1), day.Add(8*time.Hour))
	testsupport.CreateTestView(t, db, blog.ID, testsupport.UintPtr(2), day.Add(9*time.Hour))

	window := func() (int, error) {
		return timeseries.AggregateRange(db, logger, timeseries.GranularityDay, day, day.AddDate(0, 0, 1))
	}

	first, err := window()
	require.NoError(t, err)
	second, err := window()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, db.Model(&timeseries.ViewRollup{}).Count(&count).Error)
	assert.Equal(t, int64(2), count) // per-blog row + totals row, not duplicated

	var row timeseries.ViewRollup
	require.NoError(t, db.Where("blog_id = ?", blog.ID).First(&row).Error)
	assert.Equal(t, 2, row.ViewCount)
}

func TestAggregateWeekRollsUpFromDays(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	us := testsupport.CreateTestCountry(db, "US", "United States", "North America")
	alice := testsupport.CreateTestAuthor(t, db, "alice", "password")
	blog := testsupport.CreateTestBlog(t, db, "First", alice.ID, &us.ID, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	monday := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	// Same reader both days
	testsupport.CreateTestView(t, db, blog.ID, testsupport.UintPtr(1), monday.Add(10*time.Hour))
	testsupport.CreateTestView(t, db, blog.ID, testsupport.UintPtr(1), monday.Add(11*time.Hour))
	testsupport.CreateTestView(t, db, blog.ID, testsupport.UintPtr(1), tuesday.Add(10*time.Hour))

	_, err := timeseries.AggregateRange(db, logger, timeseries.GranularityDay, monday, tuesday.AddDate(0, 0, 1))
	require.NoError(t, err)

	// Remove the raw views so the week window can only come from day rollups
	require.NoError(t, db.Where("1 = 1").Delete(&blogs.BlogView{}).Error)

	_, err = timeseries.AggregateRange(db, logger, timeseries.GranularityWeek, monday, monday.AddDate(0, 0, 7))
	require.NoError(t, err)

	var weekRow timeseries.ViewRollup
	require.NoError(t, db.
		Where("granularity = ? AND blog_id = ?", timeseries.GranularityWeek, blog.ID).
		First(&weekRow).Error)
	assert.Equal(t, 3, weekRow.ViewCount)
	// Unique counts sum additively across the day buckets, so the same
	// reader appearing on both days counts twice
	assert.Equal(t, 2, weekRow.UniqueUsers)

	var weekTotals timeseries.ViewRollup
	require.NoError(t, db.
		Where("granularity = ? AND blog_id = 0 AND country_id = 0 AND author_id = 0", timeseries.GranularityWeek).
		First(&weekTotals).Error)
	assert.Equal(t, 3, weekTotals.ViewCount)
}

func TestAggregateRangeCreations(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	us := testsupport.CreateTestCountry(db, "US", "United States", "North America")
	alice := testsupport.CreateTestAuthor(t, db, "alice", "password")
	bob := testsupport.CreateTestAuthor(t, db, "bob", "password")

	august := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	testsupport.CreateTestBlog(t, db, "One", alice.ID, &us.ID, august.AddDate(0, 0, 3))
	testsupport.CreateTestBlog(t, db, "Two", alice.ID, &us.ID, august.AddDate(0, 0, 10))
	testsupport.CreateTestBlog(t, db, "Three", bob.ID, nil, august.AddDate(0, 0, 20))

	_, err := timeseries.AggregateRange(db, logger, timeseries.GranularityMonth, august, august.AddDate(0, 1, 0))
	require.NoError(t, err)

	var totals timeseries.CreationRollup
	require.NoError(t, db.
		Where("granularity = ? AND country_id = 0 AND author_id = 0", timeseries.GranularityMonth).
		First(&totals).Error)
	assert.Equal(t, 3, totals.BlogCount)

	var aliceRow timeseries.CreationRollup
	require.NoError(t, db.
		Where("granularity = ? AND author_id = ?", timeseries.GranularityMonth, alice.ID).
		First(&aliceRow).Error)
	assert.Equal(t, 2, aliceRow.BlogCount)
	assert.Equal(t, us.ID, aliceRow.CountryID)
}

func TestAggregateRangeEmptyWindow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	rows, err := timeseries.AggregateRange(db, logger, timeseries.GranularityDay, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, rows)

	var count int64
	require.NoError(t, db.Model(&timeseries.ViewRollup{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestAggregateRangeRejectsRaw(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	_, err := timeseries.AggregateRange(db, logger, timeseries.GranularityRaw, time.Now(), time.Now())
	assert.ErrorIs(t, err, timeseries.ErrUnsupportedGranularity)
}
