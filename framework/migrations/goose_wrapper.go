// Package migrations предоставляет обертку над goose для управления миграциями схемы базы данных.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // драйвер pgx для database/sql
	"github.com/pressly/goose/v3"
)

// MigrationStatus представляет статус миграции
type MigrationStatus struct {
	Version   int64
	Name      string
	AppliedAt *time.Time
	Status    string // "pending", "applied"
}

// OpenDB открывает *sql.DB поверх драйвера pgx
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func newProvider(db *sql.DB, migrations fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// RunMigrations применяет все pending миграции и возвращает количество примененных
func RunMigrations(ctx context.Context, db *sql.DB, migrations fs.FS) (int, error) {
	provider, err := newProvider(db, migrations)
	if err != nil {
		return 0, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("failed to run migrations: %w", err)
	}
	return len(results), nil
}

// RollbackMigration откатывает последнюю примененную миграцию
func RollbackMigration(ctx context.Context, db *sql.DB, migrations fs.FS) error {
	provider, err := newProvider(db, migrations)
	if err != nil {
		return err
	}

	if _, err := provider.Down(ctx); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

// GetCurrentVersion возвращает текущую версию схемы
func GetCurrentVersion(ctx context.Context, db *sql.DB, migrations fs.FS) (int64, error) {
	provider, err := newProvider(db, migrations)
	if err != nil {
		return 0, err
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// GetMigrationStatus возвращает статус всех миграций
func GetMigrationStatus(ctx context.Context, db *sql.DB, migrations fs.FS) ([]MigrationStatus, error) {
	provider, err := newProvider(db, migrations)
	if err != nil {
		return nil, err
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration status: %w", err)
	}

	result := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		status := MigrationStatus{
			Version: s.Source.Version,
			Name:    s.Source.Path,
			Status:  "pending",
		}
		if s.State == goose.StateApplied {
			appliedAt := s.AppliedAt
			status.AppliedAt = &appliedAt
			status.Status = "applied"
		}
		result = append(result, status)
	}
	return result, nil
}
