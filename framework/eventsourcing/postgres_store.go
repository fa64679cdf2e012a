package eventsourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/events"
)

// pgUniqueViolation код ошибки PostgreSQL при нарушении уникального индекса
const pgUniqueViolation = "23505"

// PostgresEventStoreConfig конфигурация для PostgreSQL Event Store
type PostgresEventStoreConfig struct {
	DSN             string
	SchemaName      string
	TableName       string
	SnapshotTable   string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// Validate проверяет корректность конфигурации
func (c PostgresEventStoreConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	return nil
}

func (c PostgresEventStoreConfig) withDefaults() PostgresEventStoreConfig {
	if c.SchemaName == "" {
		c.SchemaName = "public"
	}
	if c.TableName == "" {
		c.TableName = "event_store"
	}
	if c.SnapshotTable == "" {
		c.SnapshotTable = "snapshots"
	}
	return c
}

// DefaultPostgresEventStoreConfig возвращает конфигурацию по умолчанию
func DefaultPostgresEventStoreConfig() PostgresEventStoreConfig {
	return PostgresEventStoreConfig{
		SchemaName:      "public",
		TableName:       "event_store",
		SnapshotTable:   "snapshots",
		MaxConns:        25,
		MinConns:        2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// NewPostgresPool создает пул соединений по конфигурации
func NewPostgresPool(ctx context.Context, config PostgresEventStoreConfig) (*pgxpool.Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return pool, nil
}

// PostgresEventStore реализация EventStore для PostgreSQL
type PostgresEventStore struct {
	config       PostgresEventStoreConfig
	pool         *pgxpool.Pool
	table        string
	deserializer EventDeserializer
}

// NewPostgresEventStore создает PostgreSQL Event Store поверх существующего пула
func NewPostgresEventStore(pool *pgxpool.Pool, config PostgresEventStoreConfig, deserializer EventDeserializer) *PostgresEventStore {
	config = config.withDefaults()
	return &PostgresEventStore{
		config:       config,
		pool:         pool,
		table:        pgx.Identifier{config.SchemaName, config.TableName}.Sanitize(),
		deserializer: deserializer,
	}
}

func (s *PostgresEventStore) Start(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresEventStore) Stop(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func (s *PostgresEventStore) IsRunning() bool {
	return s.pool != nil
}

// HealthCheck проверяет доступность пула
func (s *PostgresEventStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresEventStore) Name() string {
	return "postgres-event-store"
}

func (s *PostgresEventStore) Type() core.ComponentType {
	return core.ComponentTypeStore
}

// AppendEvents добавляет пакет событий в одной транзакции.
// Запись в поток сериализуется advisory-блокировкой по идентификатору агрегата.
func (s *PostgresEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evts []events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", aggregateID); err != nil {
		return fmt.Errorf("failed to lock stream: %w", err)
	}

	var currentVersion int64
	checkQuery := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s WHERE aggregate_id = $1", s.table)
	if err := tx.QueryRow(ctx, checkQuery, aggregateID).Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to check version: %w", err)
	}

	if expectedVersion != currentVersion {
		return fmt.Errorf("%w: expected %d, got %d", ErrConcurrencyConflict, expectedVersion, currentVersion)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (event_id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.table)

	batch := &pgx.Batch{}
	for i, event := range evts {
		eventData, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		metadata, err := json.Marshal(convertMetadata(event.Metadata()))
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		batch.Queue(insertQuery,
			event.EventID(),
			aggregateID,
			getAggregateType(event),
			event.EventType(),
			eventData,
			metadata,
			expectedVersion+int64(i)+1,
			event.OccurredAt(),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pgErr.Message)
		}
		return fmt.Errorf("failed to insert events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

const selectEventColumns = `event_id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, position, occurred_at, created_at`

// GetEvents возвращает события агрегата
func (s *PostgresEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE aggregate_id = $1 AND version >= $2
		ORDER BY version ASC
	`, selectEventColumns, s.table)

	rows, err := s.pool.Query(ctx, query, aggregateID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []StoredEvent
	for rows.Next() {
		stored, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return result, nil
}

// GetAllEvents возвращает все события начиная с указанной позиции.
// Записи, которые не удалось прочитать, пропускаются.
func (s *PostgresEventStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE position >= $1
		ORDER BY position ASC
	`, selectEventColumns, s.table)

	rows, err := s.pool.Query(ctx, query, fromPosition)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	ch := make(chan StoredEvent, 100)
	go func() {
		defer close(ch)
		defer rows.Close()

		for rows.Next() {
			stored, err := s.scanEvent(rows)
			if err != nil {
				continue
			}
			select {
			case ch <- stored:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (s *PostgresEventStore) scanEvent(rows pgx.Rows) (StoredEvent, error) {
	var (
		stored                      StoredEvent
		eventDataJSON, metadataJSON []byte
	)
	err := rows.Scan(
		&stored.ID,
		&stored.AggregateID,
		&stored.AggregateType,
		&stored.EventType,
		&eventDataJSON,
		&metadataJSON,
		&stored.Version,
		&stored.Position,
		&stored.OccurredAt,
		&stored.CreatedAt,
	)
	if err != nil {
		return StoredEvent{}, fmt.Errorf("failed to scan event: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &stored.Metadata); err != nil {
			return StoredEvent{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if err := decodeRecord(s.deserializer, &stored, eventDataJSON); err != nil {
		return StoredEvent{}, fmt.Errorf("failed to deserialize event: %w", err)
	}
	return stored, nil
}

// PostgresSnapshotStore реализация SnapshotStore для PostgreSQL.
// Хранит один, последний, снапшот на агрегат.
type PostgresSnapshotStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSnapshotStore создает PostgreSQL Snapshot Store поверх существующего пула
func NewPostgresSnapshotStore(pool *pgxpool.Pool, config PostgresEventStoreConfig) *PostgresSnapshotStore {
	config = config.withDefaults()
	return &PostgresSnapshotStore{
		pool:  pool,
		table: pgx.Identifier{config.SchemaName, config.SnapshotTable}.Sanitize(),
	}
}

// SaveSnapshot сохраняет снапшот, если он новее сохраненного
func (s *PostgresSnapshotStore) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	query := fmt.Sprintf(`
		INSERT INTO %s AS s (aggregate_id, aggregate_type, version, state, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (aggregate_id)
		DO UPDATE SET aggregate_type = $2, version = $3, state = $4, metadata = $5, updated_at = $7
		WHERE s.version < $3
	`, s.table)

	metadataJSON, err := json.Marshal(snapshot.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, query,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		snapshot.State,
		metadataJSON,
		snapshot.CreatedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot возвращает последний снапшот
func (s *PostgresSnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT aggregate_id, aggregate_type, version, state, metadata, created_at
		FROM %s
		WHERE aggregate_id = $1
	`, s.table)

	var (
		snapshot     Snapshot
		metadataJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, aggregateID).Scan(
		&snapshot.AggregateID,
		&snapshot.AggregateType,
		&snapshot.Version,
		&snapshot.State,
		&metadataJSON,
		&snapshot.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &snapshot.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &snapshot, nil
}

// DeleteSnapshots удаляет старые снапшоты
func (s *PostgresSnapshotStore) DeleteSnapshots(ctx context.Context, aggregateID string, beforeVersion int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE aggregate_id = $1 AND version < $2", s.table)
	if _, err := s.pool.Exec(ctx, query, aggregateID, beforeVersion); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}
