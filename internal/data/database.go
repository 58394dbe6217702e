package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"trackhub/internal/calendar"
	"trackhub/internal/logger"
)

// =============================================================================
// CONSTANTS AND GLOBAL VARIABLES
// =============================================================================

var (
	db   *sql.DB
	dbMu sync.RWMutex
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
	connMaxIdleTime = time.Minute * 15
	queryTimeout    = time.Second * 30
)

// TimeFormat is fixed width so stored timestamps sort as text.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

var ErrNotFound = errors.New("record not found")

// =============================================================================
// DATABASE CONNECTION AND SETUP
// =============================================================================

// InitDB opens the database, retrying a few times, and applies pragmas.
func InitDB(dataSourceName string) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		db.Close()
		db = nil
	}

	return initDBWithRetry(dataSourceName, 3)
}

func initDBWithRetry(dataSourceName string, maxRetries int) error {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := sql.Open("sqlite", withPragmas(dataSourceName))
		if err != nil {
			logger.LogWarn("Database connection attempt %d failed: %v", attempt, err)
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to open database after %d attempts: %w", maxRetries, err)
		}

		conn.SetMaxOpenConns(maxOpenConns)
		conn.SetMaxIdleConns(maxIdleConns)
		conn.SetConnMaxLifetime(connMaxLifetime)
		conn.SetConnMaxIdleTime(connMaxIdleTime)

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		err = conn.PingContext(ctx)
		cancel()

		if err != nil {
			logger.LogWarn("Database ping attempt %d failed: %v", attempt, err)
			conn.Close()
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}

		db = conn
		logger.LogInfo("Database connection established successfully (attempt %d)", attempt)
		return nil
	}

	return fmt.Errorf("failed to initialize database after %d attempts", maxRetries)
}

// connectionPragmas are applied by the driver to every pooled connection.
var connectionPragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"cache_size(-64000)",
	"temp_store(MEMORY)",
}

// withPragmas appends connectionPragmas to the DSN as _pragma parameters.
func withPragmas(dataSourceName string) string {
	params := make([]string, len(connectionPragmas))
	for i, p := range connectionPragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(dataSourceName, "?") {
		sep = "&"
	}
	return dataSourceName + sep + strings.Join(params, "&")
}

// GetDB returns the open connection.
func GetDB() (*sql.DB, error) {
	dbMu.RLock()
	defer dbMu.RUnlock()

	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return db, nil
}

// Ping checks the connection, for health endpoints.
func Ping(ctx context.Context) error {
	conn, err := GetDB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second*2)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection unhealthy: %w", err)
	}
	return nil
}

func CloseDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// =============================================================================
// SCHEMA DEFINITIONS
// =============================================================================

const profileTableSchema = `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('enthusiast', 'business')),
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`

const sessionTableSchema = `
	CREATE TABLE IF NOT EXISTS sessions (
		token_hash TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);`

const membershipTableSchema = `
	CREATE TABLE IF NOT EXISTS memberships (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memberships_business ON memberships(business_id);

	CREATE TABLE IF NOT EXISTS user_memberships (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		membership_id TEXT NOT NULL REFERENCES memberships(id) ON DELETE CASCADE,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		purchase_date TEXT NOT NULL,
		expiry_date TEXT,
		UNIQUE (user_id, membership_id)
	);`

const postTableSchema = `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		type TEXT NOT NULL DEFAULT 'post',
		caption TEXT NOT NULL DEFAULT '',
		event_name TEXT,
		location TEXT,
		event_date TEXT,
		event_end_date TEXT,
		image_url TEXT,
		membership_id TEXT REFERENCES memberships(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);

	CREATE TABLE IF NOT EXISTS event_levels (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		level_id INTEGER NOT NULL,
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 1)
	);
	CREATE INDEX IF NOT EXISTS idx_event_levels_post ON event_levels(post_id);`

// =============================================================================
// TABLE CREATION AND MIGRATIONS
// =============================================================================

func CreateTables() error {
	conn, err := GetDB()
	if err != nil {
		return err
	}

	tables := []struct {
		name   string
		schema string
	}{
		{"profile", profileTableSchema},
		{"session", sessionTableSchema},
		{"membership", membershipTableSchema},
		{"post", postTableSchema},
	}

	for _, table := range tables {
		if _, err := conn.Exec(table.schema); err != nil {
			return fmt.Errorf("failed to create %s tables: %w", table.name, err)
		}
	}

	// Databases created before multi-day events lack the flag.
	if err := addColumnIfMissing(conn, "posts", "is_multi_day", "BOOLEAN NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("failed to migrate posts table: %w", err)
	}

	return nil
}

func addColumnIfMissing(conn *sql.DB, table, column, definition string) error {
	var count int
	err := conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check for %s column: %w", column, err)
	}
	if count > 0 {
		return nil
	}

	if _, err := conn.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition)); err != nil {
		return fmt.Errorf("failed to add %s column: %w", column, err)
	}
	logger.LogInfo("Added %s column to %s table", column, table)
	return nil
}

// =============================================================================
// UTILITY FUNCTIONS (TIME AND DATE HANDLING)
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(timeStr string) (time.Time, error) {
	return time.Parse(TimeFormat, timeStr)
}

func parseNullableTime(nullStr sql.NullString) (*time.Time, error) {
	if !nullStr.Valid || nullStr.String == "" {
		return nil, nil
	}

	parsed, err := parseTime(nullStr.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse time: %w", err)
	}
	return &parsed, nil
}

func formatNullableDate(d *calendar.Date) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullableDate(nullStr sql.NullString) (*calendar.Date, error) {
	if !nullStr.Valid || nullStr.String == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(nullStr.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// =============================================================================
// GENERIC DATABASE OPERATIONS
// =============================================================================

// ExecDB runs a statement bounded by the query timeout.
func ExecDB(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		logger.LogError("Database exec failed: query=%s, error=%v", query, err)
		return nil, fmt.Errorf("database execution failed: %w", err)
	}
	return result, nil
}

// QueryDB runs a query under ctx. The caller closes the rows.
func QueryDB(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		logger.LogError("Database query failed: query=%s, error=%v", query, err)
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return rows, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type errRow struct{ err error }

func (r errRow) Scan(...interface{}) error { return r.err }

// QueryRowDB runs a single-row query. An unavailable database surfaces as
// the Scan error.
func QueryRowDB(ctx context.Context, query string, args ...interface{}) rowScanner {
	conn, err := GetDB()
	if err != nil {
		return errRow{err: err}
	}
	return conn.QueryRowContext(ctx, query, args...)
}

// WithTx runs fn in a transaction, committing when it returns nil.
func WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	conn, err := GetDB()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.LogError("Transaction rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
