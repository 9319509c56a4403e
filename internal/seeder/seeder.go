// Package seeder populates a development database from a YAML fixture and
// generates randomized view traffic over a recent window. Dev and test only.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"bloglytics/internal/blogs"
	"bloglytics/internal/timeseries"
)

// Fixture is the YAML shape of a seed file.
type Fixture struct {
	Countries []CountryFixture `yaml:"countries"`
	Authors   []AuthorFixture  `yaml:"authors"`
	Blogs     []BlogFixture    `yaml:"blogs"`
}

type CountryFixture struct {
	Code      string `yaml:"code"`
	Name      string `yaml:"name"`
	Continent string `yaml:"continent"`
}

type AuthorFixture struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Bio      string `yaml:"bio"`
}

type BlogFixture struct {
	Title          string `yaml:"title"`
	Author         string `yaml:"author"`
	Country        string `yaml:"country"`
	CreatedDaysAgo int    `yaml:"created_days_ago"`
}

// Seeder handles the data seeding process.
type Seeder struct {
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	ViewCount int
	Days      int
}

// NewSeeder creates a new seeder instance. ViewCount is the total number of
// views to spread across the seeded blogs, Days the window they land in.
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, viewCount, days int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if days <= 0 {
		days = 30
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		ViewCount: viewCount,
		Days:      days,
	}
}

// LoadFixture reads and parses a YAML seed file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &fixture, nil
}

// Run executes the seeding process: fixture rows, randomized views, then a
// rollup backfill so the performance endpoint has data immediately.
func (s *Seeder) Run(ctx context.Context, fixture *Fixture) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...",
		slog.Int("viewCount", s.ViewCount),
		slog.Int("days", s.Days))

	countries, err := s.seedCountries(fixture.Countries)
	if err != nil {
		return fmt.Errorf("failed to seed countries: %w", err)
	}

	authors, err := s.seedAuthors(fixture.Authors)
	if err != nil {
		return fmt.Errorf("failed to seed authors: %w", err)
	}

	blogList, err := s.seedBlogs(fixture.Blogs, authors, countries)
	if err != nil {
		return fmt.Errorf("failed to seed blogs: %w", err)
	}

	if err := s.generateViews(ctx, blogList); err != nil {
		return fmt.Errorf("failed to generate views: %w", err)
	}

	// The backfill window has to reach back to the oldest seeded blog, not
	// just the view window, so creation rollups cover every period.
	backfillDays := s.Days
	for _, f := range fixture.Blogs {
		if f.CreatedDaysAgo > backfillDays {
			backfillDays = f.CreatedDaysAgo
		}
	}
	if err := s.backfillRollups(backfillDays); err != nil {
		return fmt.Errorf("failed to backfill rollups: %w", err)
	}

	s.Logger.Info("Seeding completed successfully", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// seedCountries inserts fixture countries, skipping any code that already
// exists.
func (s *Seeder) seedCountries(fixtures []CountryFixture) (map[string]*blogs.Country, error) {
	db := s.DBManager.GetConnection()
	byCode := make(map[string]*blogs.Country, len(fixtures))

	for _, f := range fixtures {
		var country blogs.Country
		err := db.Where("code = ?", f.Code).First(&country).Error
		if err == nil {
			s.Logger.Info("Country already exists", slog.String("code", country.Code))
			byCode[f.Code] = &country
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check for country %s: %w", f.Code, err)
		}

		country = blogs.Country{
			Code:      f.Code,
			Name:      f.Name,
			Continent: f.Continent,
		}
		err = sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			return tx.Create(&country).Error
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create country %s: %w", f.Code, err)
		}

		s.Logger.Info("Country created", slog.String("code", country.Code))
		byCode[f.Code] = &country
	}

	return byCode, nil
}

// seedAuthors inserts fixture authors with bcrypt-hashed passwords, skipping
// usernames that already exist.
func (s *Seeder) seedAuthors(fixtures []AuthorFixture) (map[string]*blogs.Author, error) {
	db := s.DBManager.GetConnection()
	byUsername := make(map[string]*blogs.Author, len(fixtures))

	for _, f := range fixtures {
		var author blogs.Author
		err := db.Where("username = ?", f.Username).First(&author).Error
		if err == nil {
			s.Logger.Info("Author already exists", slog.String("username", author.Username))
			byUsername[f.Username] = &author
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check for author %s: %w", f.Username, err)
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(f.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", f.Username, err)
		}

		author = blogs.Author{
			Username:          f.Username,
			Email:             f.Email,
			EncryptedPassword: string(hashed),
			Bio:               f.Bio,
		}
		err = sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			return tx.Create(&author).Error
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create author %s: %w", f.Username, err)
		}

		s.Logger.Info("Author created", slog.Uint64("id", uint64(author.ID)), slog.String("username", author.Username))
		byUsername[f.Username] = &author
	}

	return byUsername, nil
}

// seedBlogs inserts fixture blogs, resolving the author and country
// references by name. Existing titles for the same author are skipped.
func (s *Seeder) seedBlogs(fixtures []BlogFixture, authors map[string]*blogs.Author, countries map[string]*blogs.Country) ([]*blogs.Blog, error) {
	db := s.DBManager.GetConnection()
	var blogList []*blogs.Blog

	for _, f := range fixtures {
		author, ok := authors[f.Author]
		if !ok {
			return nil, fmt.Errorf("blog %q references unknown author %q", f.Title, f.Author)
		}

		var existing blogs.Blog
		err := db.Where("title = ? AND author_id = ?", f.Title, author.ID).First(&existing).Error
		if err == nil {
			s.Logger.Info("Blog already exists", slog.String("title", existing.Title))
			blogList = append(blogList, &existing)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check for blog %q: %w", f.Title, err)
		}

		blog := blogs.Blog{
			Title:     f.Title,
			AuthorID:  author.ID,
			CreatedAt: time.Now().UTC().AddDate(0, 0, -f.CreatedDaysAgo),
		}
		if f.Country != "" {
			country, ok := countries[f.Country]
			if !ok {
				return nil, fmt.Errorf("blog %q references unknown country %q", f.Title, f.Country)
			}
			blog.CountryID = &country.ID
		}

		if err := blogs.CreateBlog(db, s.Logger, &blog); err != nil {
			return nil, fmt.Errorf("failed to create blog %q: %w", f.Title, err)
		}

		s.Logger.Info("Blog created", slog.Uint64("id", uint64(blog.ID)), slog.String("title", blog.Title))
		blogList = append(blogList, &blog)
	}

	return blogList, nil
}

// generateViews spreads randomized views across the seeded blogs over the
// past window. A skewed blog choice keeps the top-N rankings interesting,
// and a share of views stays anonymous.
func (s *Seeder) generateViews(ctx context.Context, blogList []*blogs.Blog) error {
	if len(blogList) == 0 || s.ViewCount <= 0 {
		return nil
	}

	db := s.DBManager.GetConnection()
	viewsCreated := 0

	// Pool of reader ids so unique-user counts stay below view counts
	readerPool := make([]uint, 50)
	for i := range readerPool {
		readerPool[i] = uint(i + 1)
	}

	for i := 0; i < s.ViewCount; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Squaring the draw skews traffic toward the first blogs
		draw := rand.Float64() * rand.Float64()
		blog := blogList[int(draw*float64(len(blogList)))]

		viewedAt := time.Now().UTC().Add(-time.Duration(rand.IntN(s.Days*24*60*60)) * time.Second)

		var userID *uint
		if rand.Float64() < 0.7 {
			id := readerPool[rand.IntN(len(readerPool))]
			userID = &id
		}

		input := &blogs.RecordViewInput{
			BlogID:   blog.ID,
			UserID:   userID,
			ViewedAt: viewedAt,
		}
		if _, err := blogs.RecordView(db, s.Logger, input); err != nil {
			s.Logger.Error("Failed to record view during seeding", slog.Any("error", err))
		} else {
			viewsCreated++
		}
	}

	s.Logger.Info("Generated randomized views",
		slog.Int("blogs", len(blogList)),
		slog.Int("totalViews", viewsCreated))
	return nil
}

// backfillRollups aggregates the seeded window at every granularity so the
// rollup-backed queries return data without waiting for the scheduler.
func (s *Seeder) backfillRollups(days int) error {
	db := s.DBManager.GetConnection()
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)

	totalRows := 0
	for _, g := range timeseries.AggregatedGranularities {
		rows, err := timeseries.AggregateRange(db, s.Logger, g, from, to)
		if err != nil {
			return fmt.Errorf("backfill at %s failed: %w", g, err)
		}
		totalRows += rows
	}

	s.Logger.Info("Backfilled rollups", slog.Int("rows", totalRows))
	return nil
}
