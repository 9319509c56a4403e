package timeseries

import (
	"time"
)

// Dimension ids in rollup rows use 0 as the "no dimension" sentinel instead
// of NULL: SQLite treats NULLs as distinct in unique indexes, which would
// let re-aggregation duplicate rows. A row with all dimension ids 0 is the
// grand total for its bucket.

// ViewRollup is one pre-aggregated view summary per
// (granularity, bucket, blog, country, author).
type ViewRollup struct {
	ID                uint        `gorm:"primarykey"`
	Granularity       Granularity `gorm:"size:8;not null;uniqueIndex:idx_view_rollups_key;index:idx_view_rollups_range"`
	Bucket            time.Time   `gorm:"not null;uniqueIndex:idx_view_rollups_key;index:idx_view_rollups_range"`
	BlogID            uint        `gorm:"not null;default:0;uniqueIndex:idx_view_rollups_key;index"`
	CountryID         uint        `gorm:"not null;default:0;uniqueIndex:idx_view_rollups_key;index"`
	AuthorID          uint        `gorm:"not null;default:0;uniqueIndex:idx_view_rollups_key;index"`
	ViewCount         int         `gorm:"not null;default:0"`
	UniqueBlogsViewed int         `gorm:"not null;default:0"`
	UniqueUsers       int         `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsTotals reports whether the row is the all-dimensions total for its bucket.
func (r ViewRollup) IsTotals() bool {
	return r.BlogID == 0 && r.CountryID == 0 && r.AuthorID == 0
}

// CreationRollup is one pre-aggregated blog-creation summary per
// (granularity, bucket, country, author).
type CreationRollup struct {
	ID          uint        `gorm:"primarykey"`
	Granularity Granularity `gorm:"size:8;not null;uniqueIndex:idx_creation_rollups_key;index:idx_creation_rollups_range"`
	Bucket      time.Time   `gorm:"not null;uniqueIndex:idx_creation_rollups_key;index:idx_creation_rollups_range"`
	CountryID   uint        `gorm:"not null;default:0;uniqueIndex:idx_creation_rollups_key;index"`
	AuthorID    uint        `gorm:"not null;default:0;uniqueIndex:idx_creation_rollups_key;index"`
	BlogCount   int         `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsTotals reports whether the row is the all-dimensions total for its bucket.
func (r CreationRollup) IsTotals() bool {
	return r.CountryID == 0 && r.AuthorID == 0
}
