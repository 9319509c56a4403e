package jobs

import (
	"log/slog"
	"time"

	"bloglytics/internal/blogs"
	"bloglytics/internal/config"
	"bloglytics/internal/database"
)

// CleanupJob removes raw view events older than the retention window. Their
// history survives in the rollup tables.
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run deletes raw views past the retention period in batches.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.RawViewsRetentionDays
	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old raw views",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	// Count views to be deleted first
	var countToDelete int64
	if err := db.Model(&blogs.BlogView{}).
		Where("viewed_at < ?", cutoffDate).
		Count(&countToDelete).Error; err != nil {
		j.logger.Error("Failed to count old raw views", slog.Any("error", err))
		return err
	}

	if countToDelete == 0 {
		j.logger.Debug("No old raw views to clean up")
		return nil
	}

	// Delete in batches to avoid locking the database for too long
	batchSize := 1000
	totalDeleted := int64(0)

	for {
		result := db.Where("viewed_at < ?", cutoffDate).
			Limit(batchSize).
			Delete(&blogs.BlogView{})

		if result.Error != nil {
			j.logger.Error("Failed to delete old raw views",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return result.Error
		}

		totalDeleted += result.RowsAffected

		if result.RowsAffected < int64(batchSize) {
			break
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(100 * time.Millisecond)
	}

	j.logger.Info("Cleaned up old raw views",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", retentionDays))

	return nil
}
