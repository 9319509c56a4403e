package jobs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bloglytics/internal/database"
	"bloglytics/internal/timeseries"
)

// AggregationJob compresses the previous period into rollups. Hour and day
// run on every tick; week, month and year only run once per new bucket,
// tracked in memory since re-running them is harmless but pointless.
type AggregationJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger

	mu            sync.Mutex
	lastCoarseRun map[timeseries.Granularity]time.Time
}

func NewAggregationJob(dbManager *database.DBManager, logger *slog.Logger) *AggregationJob {
	return &AggregationJob{
		dbManager: dbManager,
		logger:    logger,
		lastCoarseRun: map[timeseries.Granularity]time.Time{
			timeseries.GranularityWeek:  {},
			timeseries.GranularityMonth: {},
			timeseries.GranularityYear:  {},
		},
	}
}

// Run aggregates views and creations for every due granularity.
func (j *AggregationJob) Run() error {
	db := j.dbManager.GetConnection()
	now := time.Now().UTC()
	totalRows := 0

	for _, g := range timeseries.AggregatedGranularities {
		if !j.due(g, now) {
			continue
		}

		rows, err := timeseries.AggregateViews(db, j.logger, g)
		if err != nil {
			return fmt.Errorf("aggregate views at %s: %w", g, err)
		}
		totalRows += rows

		rows, err = timeseries.AggregateCreations(db, j.logger, g)
		if err != nil {
			return fmt.Errorf("aggregate creations at %s: %w", g, err)
		}
		totalRows += rows

		j.markRun(g, now)
	}

	j.logger.Info("Aggregation job completed", slog.Int("rows", totalRows))
	return nil
}

func (j *AggregationJob) due(g timeseries.Granularity, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	last, coarse := j.lastCoarseRun[g]
	if !coarse {
		return true
	}
	return last.IsZero() || timeseries.BucketStart(now, g).After(timeseries.BucketStart(last, g))
}

func (j *AggregationJob) markRun(g timeseries.Granularity, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, coarse := j.lastCoarseRun[g]; coarse {
		j.lastCoarseRun[g] = now
	}
}
