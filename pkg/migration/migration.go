package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// Config содержит источник миграций.
type Config struct {
	MigrationsPath string
	MigrationsFS   fs.FS
	LockTimeout    time.Duration
}

// Migrator применяет SQL-миграции к базе из пула pgx.
type Migrator struct {
	config Config
	pool   *pgxpool.Pool
	log    zerolog.Logger
}

func NewMigrator(config Config, pool *pgxpool.Pool, log zerolog.Logger) *Migrator {
	if config.LockTimeout <= 0 {
		config.LockTimeout = 30 * time.Second
	}
	return &Migrator{config: config, pool: pool, log: log.With().Str("component", "migrator").Logger()}
}

// Up применяет все доступные миграции.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down откатывает все миграции.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, "down", func(mg *migrate.Migrate) error { return mg.Down() })
}

// Steps применяет n миграций вперёд (n > 0) или назад (n < 0).
func (m *Migrator) Steps(ctx context.Context, n int) error {
	return m.run(ctx, fmt.Sprintf("steps(%d)", n), func(mg *migrate.Migrate) error { return mg.Steps(n) })
}

// Force выставляет версию без применения миграций (после ручного исправления dirty-состояния).
func (m *Migrator) Force(ctx context.Context, version int) error {
	return m.run(ctx, fmt.Sprintf("force(%d)", version), func(mg *migrate.Migrate) error { return mg.Force(version) })
}

// Version возвращает текущую версию схемы.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	mg, err := m.open(ctx)
	if err != nil {
		return 0, false, err
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// UpInBackground применяет миграции в отдельной горутине. Ошибка только логируется.
func (m *Migrator) UpInBackground(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		if err := m.Up(ctx); err != nil {
			m.log.Error().Err(err).Msg("background migration failed")
			done <- err
		}
	}()
	return done
}

func (m *Migrator) run(ctx context.Context, op string, fn func(*migrate.Migrate) error) error {
	mg, err := m.open(ctx)
	if err != nil {
		return err
	}
	defer mg.Close()

	start := time.Now()
	if err := fn(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", op, err)
	}
	m.log.Info().Str("op", op).Dur("duration", time.Since(start)).Msg("database migration finished")
	return nil
}

func (m *Migrator) open(ctx context.Context) (*migrate.Migrate, error) {
	if err := m.pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("database is not reachable: %w", err)
	}

	db := stdlib.OpenDBFromPool(m.pool)
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(m.config.MigrationsFS, m.config.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	mg.LockTimeout = m.config.LockTimeout
	return mg, nil
}
