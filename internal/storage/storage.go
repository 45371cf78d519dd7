package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its configuration in package globals
var migrateMu sync.Mutex

// Storage manages the bridge database
type Storage struct {
	db     *sql.DB
	logger *slog.Logger

	// stampMu orders account writes so updated_at grows in commit order
	stampMu   sync.Mutex
	lastStamp int64
	now       func() time.Time
}

// New opens the database at dbPath and applies pending migrations
func New(dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}

	storage := &Storage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// init runs migrations and restores the watermark clock
func (s *Storage) init() error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{logger: s.logger})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Never hand out a stamp below one already stored, even if the wall clock went back
	err := s.db.QueryRow(`SELECT coalesce(max(updated_at), 0) FROM copier_accounts`).Scan(&s.lastStamp)
	if err != nil {
		return fmt.Errorf("failed to read last watermark: %w", err)
	}

	s.logger.Info("✅ Bridge database initialized")

	return nil
}

// withStamp runs fn holding the stamp lock with a fresh, strictly increasing
// updated_at value in unix microseconds.
func (s *Storage) withStamp(fn func(stamp int64) error) error {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()

	stamp := s.now().UnixMicro()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}

	if err := fn(stamp); err != nil {
		return err
	}

	s.lastStamp = stamp

	return nil
}

// Ping checks database connectivity
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

// nullable turns an optional value into a driver argument, nil stays NULL
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}

	return *p
}

func nullableBool(p *bool) any {
	if p == nil {
		return nil
	}

	return boolToInt(*p)
}
