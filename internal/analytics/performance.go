package analytics

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"bloglytics/internal/filters"
	"bloglytics/internal/timeseries"
)

// Performance reads rollups only, never raw views. Per period it reports
// X = "<period> (<N> blogs)" with N the blogs created in that period,
// Y = views in the period, Z = growth percentage against the previous
// period. Growth is null for the first period and for a 0 -> 0 transition,
// 100.0 for 0 -> n, otherwise (current - previous) / previous * 100. The
// first value is never coerced to zero.
func Performance(db *gorm.DB, periodSize string, params Params) ([]PerformanceRow, error) {
	granularity, err := timeseries.ParseGranularity(periodSize)
	if err != nil {
		return nil, err
	}
	switch granularity {
	case timeseries.GranularityDay, timeseries.GranularityWeek, timeseries.GranularityMonth, timeseries.GranularityYear:
	default:
		return nil, fmt.Errorf("%w: %q is not a performance period size", timeseries.ErrUnsupportedGranularity, periodSize)
	}

	from, to, err := params.timeRange()
	if err != nil {
		return nil, err
	}

	// Rollup rows only carry dimension ids, so performance filters resolve
	// against the id allowlist; the creation series is scoped by the author
	// filter alone.
	var pred *filters.Predicate
	if params.Filters != nil {
		compiled, err := filters.Compile(params.Filters, filters.MapResolver(timeseries.RollupFieldColumns))
		if err != nil {
			return nil, err
		}
		pred = &compiled
	}

	if from.IsZero() || to.IsZero() {
		min, max, err := rollupBucketBounds(db, granularity)
		if err != nil {
			return nil, err
		}
		if min == nil {
			return []PerformanceRow{}, nil
		}
		if from.IsZero() {
			from = *min
		}
		if to.IsZero() {
			to = timeseries.NextBucket(*max, granularity)
		}
	}

	viewScope := timeseries.RollupScope{AuthorID: params.AuthorID, Pred: pred}
	viewSums, err := timeseries.SumViewsByBucket(db, granularity, from, to, viewScope)
	if err != nil {
		return nil, err
	}

	creationScope := timeseries.RollupScope{AuthorID: params.AuthorID}
	creationSums, err := timeseries.SumCreationsByBucket(db, granularity, from, to, creationScope)
	if err != nil {
		return nil, err
	}

	views := make(map[time.Time]int64, len(viewSums))
	buckets := make(map[time.Time]bool, len(viewSums))
	for _, s := range viewSums {
		views[s.Bucket] = s.Total
		buckets[s.Bucket] = true
	}
	creations := make(map[time.Time]int64, len(creationSums))
	for _, s := range creationSums {
		creations[s.Bucket] = s.Total
		buckets[s.Bucket] = true
	}

	ordered := make([]time.Time, 0, len(buckets))
	for bucket := range buckets {
		ordered = append(ordered, bucket)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	rows := make([]PerformanceRow, 0, len(ordered))
	var previous *int64
	for _, bucket := range ordered {
		current := views[bucket]
		rows = append(rows, PerformanceRow{
			X: fmt.Sprintf("%s (%d blogs)", timeseries.FormatPeriod(bucket, granularity), creations[bucket]),
			Y: current,
			Z: Growth(previous, current),
		})
		value := current
		previous = &value
	}
	return rows, nil
}

// Growth computes the period-over-period percentage change. A nil previous
// means no prior period exists.
func Growth(previous *int64, current int64) *float64 {
	if previous == nil {
		return nil
	}
	if *previous == 0 {
		if current > 0 {
			value := 100.0
			return &value
		}
		return nil
	}
	value := (float64(current) - float64(*previous)) / float64(*previous) * 100
	return &value
}

func rollupBucketBounds(db *gorm.DB, g timeseries.Granularity) (*time.Time, *time.Time, error) {
	var bounds struct {
		Min *time.Time
		Max *time.Time
	}
	err := db.Model(&timeseries.ViewRollup{}).
		Select("MIN(bucket) AS min, MAX(bucket) AS max").
		Where("granularity = ?", g).
		Scan(&bounds).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rollup bounds: %w", err)
	}
	return bounds.Min, bounds.Max, nil
}
