// Package blogs holds the content domain: countries, authors, blogs and the
// raw view events the rollup pipeline aggregates.
package blogs

import (
	"time"
)

// Country is a grouping dimension for blogs.
type Country struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	Code      string `gorm:"size:2;not null;uniqueIndex" json:"code"`
	Name      string `gorm:"not null" json:"name"`
	Continent string `json:"continent"`
}

// Author wraps a platform identity. The denormalized counters are maintained
// by the publishing side; analytics only reads them.
type Author struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	Username          string    `gorm:"not null;uniqueIndex" json:"username"`
	Email             string    `gorm:"not null" json:"email"`
	EncryptedPassword string    `gorm:"not null" json:"-"`
	Bio               string    `json:"bio"`
	NumberOfBlogs     int       `gorm:"not null;default:0" json:"number_of_blogs"`
	NumberOfViews     int       `gorm:"not null;default:0" json:"number_of_views"`
	NumberOfLikes     int       `gorm:"not null;default:0" json:"number_of_likes"`
	NumberOfFollowers int       `gorm:"not null;default:0" json:"number_of_followers"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Blog is a publishable content item. Deleting the author deletes its blogs;
// deleting a country nulls the reference.
type Blog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Author    *Author   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CountryID *uint     `gorm:"index" json:"country_id"`
	Country   *Country  `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BlogView is one observed read of a blog. UserID is the viewer and is nil
// for anonymous views. Rows are immutable once written.
type BlogView struct {
	ID       uint      `gorm:"primarykey" json:"id"`
	BlogID   uint      `gorm:"not null;index" json:"blog_id"`
	Blog     *Blog     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID   *uint     `gorm:"index" json:"user_id"`
	ViewedAt time.Time `gorm:"not null;index" json:"viewed_at"`
}
