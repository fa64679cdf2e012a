package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CheckpointStore хранит позицию последнего обработанного проекцией события.
// Для неизвестной проекции возвращается 0.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, projectionName string, position int64) error
	GetCheckpoint(ctx context.Context, projectionName string) (int64, error)
}

// DefaultCheckpointTable таблица (коллекция) позиций проекций
const DefaultCheckpointTable = "projection_checkpoints"

// PostgresCheckpointStore реализация CheckpointStore для PostgreSQL.
// Таблица создается миграцией.
type PostgresCheckpointStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresCheckpointStore создает CheckpointStore поверх пула event store
func NewPostgresCheckpointStore(pool *pgxpool.Pool, config PostgresEventStoreConfig) *PostgresCheckpointStore {
	config = config.withDefaults()
	return &PostgresCheckpointStore{
		pool:  pool,
		table: pgx.Identifier{config.SchemaName, DefaultCheckpointTable}.Sanitize(),
	}
}

func (s *PostgresCheckpointStore) SaveCheckpoint(ctx context.Context, projectionName string, position int64) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (projection_name, position, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (projection_name)
		DO UPDATE SET position = EXCLUDED.position, updated_at = NOW()
	`, s.table)
	if _, err := s.pool.Exec(ctx, query, projectionName, position); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresCheckpointStore) GetCheckpoint(ctx context.Context, projectionName string) (int64, error) {
	query := fmt.Sprintf(`SELECT position FROM %s WHERE projection_name = $1`, s.table)
	var position int64
	err := s.pool.QueryRow(ctx, query, projectionName).Scan(&position)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return position, nil
}

// MongoDBCheckpointStore реализация CheckpointStore для MongoDB, _id = имя проекции
type MongoDBCheckpointStore struct {
	collection *mongo.Collection
}

// NewMongoDBCheckpointStore создает CheckpointStore в базе event store
func NewMongoDBCheckpointStore(db *mongo.Database) *MongoDBCheckpointStore {
	return &MongoDBCheckpointStore{collection: db.Collection(DefaultCheckpointTable)}
}

func (s *MongoDBCheckpointStore) SaveCheckpoint(ctx context.Context, projectionName string, position int64) error {
	update := bson.M{"$set": bson.M{
		"position":   position,
		"updated_at": time.Now().UTC(),
	}}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": projectionName}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *MongoDBCheckpointStore) GetCheckpoint(ctx context.Context, projectionName string) (int64, error) {
	var doc struct {
		Position int64 `bson:"position"`
	}
	err := s.collection.FindOne(ctx, bson.M{"_id": projectionName}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return doc.Position, nil
}

// InMemoryCheckpointStore реализация CheckpointStore в памяти
type InMemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]int64
}

// NewInMemoryCheckpointStore создает InMemoryCheckpointStore
func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{checkpoints: make(map[string]int64)}
}

func (s *InMemoryCheckpointStore) SaveCheckpoint(ctx context.Context, projectionName string, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[projectionName] = position
	return nil
}

func (s *InMemoryCheckpointStore) GetCheckpoint(ctx context.Context, projectionName string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[projectionName], nil
}
