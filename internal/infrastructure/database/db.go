package database

import (
	"context"
	"embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
)

//go:embed migrations/postgres/*.sql
var embedPostgresSchema embed.FS

//go:embed migrations/sqlite/*.sql
var embedSqliteSchema embed.FS

// goose keeps its dialect and filesystem in package globals
var migrateMu sync.Mutex

// DB wraps the sqlx connection together with the engine it talks to
type DB struct {
	db           *sqlx.DB
	engine       string
	queryTimeout time.Duration
	logger       *zap.Logger
}

// Open connects to the configured engine
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Engine {
	case config.EnginePostgres:
		db, err = sqlx.Connect("postgres", cfg.DSN())
		if err != nil {
			return nil, apperrors.Storage("connect postgres", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	case config.EngineSqlite:
		db, err = sqlx.Connect("sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.SqliteFile))
		if err != nil {
			return nil, apperrors.Storage("open sqlite", err)
		}
		// sqlite serializes writers anyway
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	default:
		return nil, apperrors.Configuration("open database", "unknown engine %q", cfg.Engine)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.Storage("ping database", err)
	}

	logger.Info("Connected to database",
		zap.String("engine", cfg.Engine),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
	)

	return NewDB(db, cfg.Engine, cfg.QueryTimeout, logger), nil
}

// NewDB wraps an already opened connection
func NewDB(db *sqlx.DB, engine string, queryTimeout time.Duration, logger *zap.Logger) *DB {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &DB{
		db:           db,
		engine:       engine,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// Migrate applies the embedded schema for the current engine
func (d *DB) Migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	var dialect, dir string
	switch d.engine {
	case config.EnginePostgres:
		goose.SetBaseFS(embedPostgresSchema)
		dialect, dir = "postgres", "migrations/postgres"
	case config.EngineSqlite:
		goose.SetBaseFS(embedSqliteSchema)
		dialect, dir = "sqlite3", "migrations/sqlite"
	default:
		return apperrors.Configuration("migrate", "unknown engine %q", d.engine)
	}
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return apperrors.Storage("migrate", err)
	}
	goose.SetLogger(goose.NopLogger())

	if err := goose.UpContext(ctx, d.db.DB, dir); err != nil {
		return apperrors.Storage("migrate", err)
	}

	version, err := goose.GetDBVersionContext(ctx, d.db.DB)
	if err != nil {
		return apperrors.Storage("migrate", err)
	}
	d.logger.Info("Database schema up to date", zap.Int64("version", version))

	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// DB returns the underlying sqlx.DB
func (d *DB) DB() *sqlx.DB {
	return d.db
}

// Engine returns the configured engine name
func (d *DB) Engine() string {
	return d.engine
}

// HealthCheck performs a health check on the database
func (d *DB) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// withTimeout bounds a single storage call
func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.queryTimeout)
}
