package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bloglytics/internal"
	"bloglytics/internal/blogs"
	"bloglytics/internal/config"
	"bloglytics/internal/timeseries"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with bloglytics' interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all bloglytics models for migration
func allModels() []any {
	return []any{
		&blogs.Country{},
		&blogs.Author{},
		&blogs.Blog{},
		&blogs.BlogView{},
		&timeseries.ViewRollup{},
		&timeseries.CreationRollup{},
	}
}

// SetupTestDB creates a test database with all bloglytics models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same
// database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	// Check cache first
	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// Apply SQLite pragmas
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	// Auto-migrate models
	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	// Cache the database
	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	// Register cleanup
	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set BLOGLYTICS_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CleanTables cleans specific tables or all tables if none specified
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		CleanAllTables(db)
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CleanAllRollups cleans the rollup tables
func CleanAllRollups(db *gorm.DB) {
	CleanTables(db, []string{"view_rollups", "creation_rollups"})
}

// CreateTestCountry creates a country row, reusing an existing one by code
func CreateTestCountry(db *gorm.DB, code, name, continent string) blogs.Country {
	var country blogs.Country
	if db.Where("code = ?", code).First(&country).Error == nil {
		return country
	}
	country = blogs.Country{Code: code, Name: name, Continent: continent}
	db.Create(&country)
	return country
}

// CreateTestAuthor creates an author with a bcrypt-hashed password
func CreateTestAuthor(t *testing.T, db *gorm.DB, username, password string) *blogs.Author {
	t.Helper()

	var author blogs.Author
	if db.Where("username = ?", username).First(&author).Error == nil {
		return &author
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	author = blogs.Author{
		Username:          username,
		Email:             username + "@example.com",
		EncryptedPassword: string(hashedPassword),
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(&author).Error)
	return &author
}

// CreateTestBlog creates a blog for an author, countryID may be nil
func CreateTestBlog(t *testing.T, db *gorm.DB, title string, authorID uint, countryID *uint, createdAt time.Time) *blogs.Blog {
	t.Helper()

	blog := &blogs.Blog{
		Title:     title,
		AuthorID:  authorID,
		CountryID: countryID,
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(blog).Error)
	return blog
}

// CreateTestView inserts a raw view row directly
func CreateTestView(t *testing.T, db *gorm.DB, blogID uint, userID *uint, viewedAt time.Time) *blogs.BlogView {
	t.Helper()

	view := &blogs.BlogView{
		BlogID:   blogID,
		UserID:   userID,
		ViewedAt: viewedAt,
	}
	require.NoError(t, db.Create(view).Error)
	return view
}

// UintPtr returns a pointer to the given uint, for optional id fields
func UintPtr(v uint) *uint {
	return &v
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// GetFirstDayOfISOWeek returns the first day of the given ISO week
func GetFirstDayOfISOWeek(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	isoYearStart := jan4.AddDate(0, 0, -int(jan4.Weekday()-time.Monday))
	return isoYearStart.AddDate(0, 0, (week-1)*7)
}

// GetTimeInISOWeek returns a time in the specified ISO week
func GetTimeInISOWeek(year, week, dayOffset, hour, min int) time.Time {
	return GetFirstDayOfISOWeek(year, week).AddDate(0, 0, dayOffset).
		Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
