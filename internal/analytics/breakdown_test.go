package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloglytics/internal/analytics"
	"bloglytics/internal/testsupport"
	"bloglytics/internal/timeseries"
)

func TestBreakdownByCountryAndDay(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	us := testsupport.CreateTestCountry(db, "US", "United States", "North America")
	de := testsupport.CreateTestCountry(db, "DE", "Germany", "Europe")
	alice := testsupport.CreateTestAuthor(t, db, "alice", "password")

	created := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	b1 := testsupport.CreateTestBlog(t, db, "First", alice.ID, &us.ID, created)
	b2 := testsupport.CreateTestBlog(t, db, "Second", alice.ID, &de.ID, created)

	day1 := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	testsupport.CreateTestView(t, db, b1.ID, testsupport.UintPtr(1), day1.Add(10*time.Hour))
	testsupport.CreateTestView(t, db, b1.ID, testsupport.UintPtr(2), day1.Add(11*time.Hour))
	testsupport.CreateTestView(t, db, b2.ID, testsupport.UintPtr(1), day1.Add(12*time.Hour))
	testsupport.CreateTestView(t, db, b1.ID, testsupport.UintPtr(1), day2.Add(10*time.Hour))

	params := analytics.Params{Start: "2026-08-19", End: "2026-08-20", Granularity: "day"}
	rows, err := analytics.Breakdown(db, "country", params)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Ordered by period ascending, then views descending within the period
	assert.Equal(t, analytics.Row{X: "United States - 2026-08-19", Y: 1, Z: 2}, rows[0])
	assert.Equal(t, analytics.Row{X: "Germany - 2026-08-19", Y: 1, Z: 1}, rows[1])
	assert.Equal(t, analytics.Row{X: "United States - 2026-08-20", Y: 1, Z: 1}, rows[2])
}

func TestBreakdownWeekUsesISOLabels(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	us := testsupport.CreateTestCountry(db, "US", "United States", "North America")
	alice := testsupport.CreateTestAuthor(t, db, "alice", "password")
	blog := testsupport.CreateTestBlog(t, db, "First", alice.ID, &us.ID, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	// Thursday of ISO week 34 and Monday of week 35
	testsupport.CreateTestView(t, db, blog.ID, nil, time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	testsupport.CreateTestView(t, db, blog.ID, nil, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))

	params := analytics.Params{Start: "2026-08-17", End: "2026-08-30", Granularity: "week"}
	rows, err := analytics.Breakdown(db, "country", params)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "United States - 2026-W34", rows[0].X)
	assert.Equal(t, "United States - 2026-W35", rows[1].X)
}

func TestBreakdownByUser(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	alice := testsupport.CreateTestAuthor(t, db, "alice", "password")
	bob := testsupport.CreateTestAuthor(t, db, "bob", "password")
	created := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	b1 := testsupport.CreateTestBlog(t, db, "First", alice.ID, nil, created)
	b2 := testsupport.CreateTestBlog(t, db, "Second", bob.ID, nil, created)

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	testsupport.CreateTestView(t, db, b1.ID, nil, day.Add(9*time.Hour))
	testsupport.CreateTestView(t, db, b1.ID, nil, day.Add(10*time.Hour))
	testsupport.CreateTestView(t, db, b2.ID, nil, day.Add(11*time.Hour))

	params := analytics.Params{Start: "2026-08-20", End: "2026-08-20", Granularity: "day"}
	rows, err := analytics.Breakdown(db, "user", params)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, analytics.Row{X: "alice - 2026-08-20", Y: 1, Z: 2}, rows[0])
	assert.Equal(t, analytics.Row{X: "bob - 2026-08-20", Y: 1, Z: 1}, rows[1])
}

func TestBreakdownAutoDetectsGranularity(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	us := testsupport.CreateTestCountry(db, "US", "United States", "North America")
	alice := testsupport.CreateTestAuthor(t, db, "alice", "password")
	blog := testsupport.CreateTestBlog(t, db, "First", alice.ID, &us.ID, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	testsupport.CreateTestView(t, db, blog.ID, nil, time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC))

	// A three-day span auto-selects daily periods
	params := analytics.Params{Start: "2026-08-18", End: "2026-08-21"}
	rows, err := analytics.Breakdown(db, "country", params)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "United States - 2026-08-19", rows[0].X)
}

func TestBreakdownErrors(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("unknown dimension", func(t *testing.T) {
		_, err := analytics.Breakdown(db, "blog", analytics.Params{})
		assert.ErrorIs(t, err, analytics.ErrInvalidDimension)
	})

	t.Run("raw granularity rejected", func(t *testing.T) {
		_, err := analytics.Breakdown(db, "country", analytics.Params{Granularity: "raw"})
		assert.ErrorIs(t, err, timeseries.ErrUnsupportedGranularity)
	})

	t.Run("unknown granularity rejected", func(t *testing.T) {
		_, err := analytics.Breakdown(db, "country", analytics.Params{Granularity: "decade"})
		assert.ErrorIs(t, err, timeseries.ErrUnsupportedGranularity)
	})
}
