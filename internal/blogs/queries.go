package blogs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// RecordViewInput carries the fields accepted by the public ingestion endpoint.
type RecordViewInput struct {
	BlogID   uint
	UserID   *uint
	ViewedAt time.Time
}

// RecordView inserts a single view event. The timestamp defaults to now when
// the caller does not supply one.
func RecordView(db *gorm.DB, logger *slog.Logger, input *RecordViewInput) (*BlogView, error) {
	var blog Blog
	if err := db.First(&blog, input.BlogID).Error; err != nil {
		return nil, fmt.Errorf("blog %d not found: %w", input.BlogID, err)
	}

	viewedAt := input.ViewedAt
	if viewedAt.IsZero() {
		viewedAt = time.Now().UTC()
	}

	view := &BlogView{
		BlogID:   blog.ID,
		UserID:   input.UserID,
		ViewedAt: viewedAt,
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(view).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record view: %w", err)
	}

	return view, nil
}

// CreateBlog inserts a blog row and bumps the author's blog counter.
func CreateBlog(db *gorm.DB, logger *slog.Logger, blog *Blog) error {
	if blog.CreatedAt.IsZero() {
		blog.CreatedAt = time.Now().UTC()
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Create(blog).Error; err != nil {
			return err
		}
		return tx.Model(&Author{}).Where("id = ?", blog.AuthorID).
			UpdateColumn("number_of_blogs", gorm.Expr("number_of_blogs + 1")).Error
	})
}

// ViewListParams scopes a paginated listing of raw views.
type ViewListParams struct {
	BlogID   *uint
	AuthorID *uint
	From     time.Time
	To       time.Time
	Page     int
	PerPage  int
}

// GetFilteredViews returns a page of raw view rows plus the total match count,
// newest first.
func GetFilteredViews(db *gorm.DB, params ViewListParams) ([]BlogView, int64, error) {
	query := db.Model(&BlogView{}).
		Joins("JOIN blogs ON blogs.id = blog_views.blog_id")

	if params.BlogID != nil {
		query = query.Where("blog_views.blog_id = ?", *params.BlogID)
	}
	if params.AuthorID != nil {
		query = query.Where("blogs.author_id = ?", *params.AuthorID)
	}
	if !params.From.IsZero() {
		query = query.Where("blog_views.viewed_at >= ?", params.From)
	}
	if !params.To.IsZero() {
		query = query.Where("blog_views.viewed_at < ?", params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count views: %w", err)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	if perPage < 1 {
		perPage = 50
	}

	var views []BlogView
	err := query.Order("blog_views.viewed_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&views).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list views: %w", err)
	}

	return views, total, nil
}

// CountViewsInRange counts raw views in the half-open window [from, to).
func CountViewsInRange(db *gorm.DB, from, to time.Time) (int64, error) {
	var count int64
	err := db.Model(&BlogView{}).
		Where("viewed_at >= ? AND viewed_at < ?", from, to).
		Count(&count).Error
	return count, err
}
