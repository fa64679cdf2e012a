package eventsourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/events"
)

// MongoDBEventStoreConfig конфигурация для MongoDB Event Store
type MongoDBEventStoreConfig struct {
	URI         string
	Database    string
	Collection  string
	Timeout     time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64
}

// Validate проверяет корректность конфигурации
func (c MongoDBEventStoreConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("URI cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	return nil
}

// DefaultMongoDBEventStoreConfig возвращает конфигурацию по умолчанию
func DefaultMongoDBEventStoreConfig() MongoDBEventStoreConfig {
	return MongoDBEventStoreConfig{
		Database:    "inventory",
		Collection:  "events",
		Timeout:     10 * time.Second,
		MaxPoolSize: 100,
		MinPoolSize: 10,
	}
}

// eventDocument документ события в коллекции
type eventDocument struct {
	EventID       string                 `bson:"_id"`
	AggregateID   string                 `bson:"aggregate_id"`
	AggregateType string                 `bson:"aggregate_type"`
	EventType     string                 `bson:"event_type"`
	EventData     string                 `bson:"event_data"`
	Metadata      map[string]interface{} `bson:"metadata"`
	Version       int64                  `bson:"version"`
	Position      int64                  `bson:"position"`
	OccurredAt    time.Time              `bson:"occurred_at"`
	CreatedAt     time.Time              `bson:"created_at"`
}

// MongoDBEventStore реализация EventStore для MongoDB.
// Пакет записывается в транзакции, поэтому требуется replica set.
type MongoDBEventStore struct {
	config       MongoDBEventStoreConfig
	client       *mongo.Client
	collection   *mongo.Collection
	counters     *mongo.Collection
	deserializer EventDeserializer
}

// NewMongoDBEventStore подключается к MongoDB и создает индексы
func NewMongoDBEventStore(ctx context.Context, config MongoDBEventStoreConfig, deserializer EventDeserializer) (*MongoDBEventStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongodb config: %w", err)
	}
	if config.Collection == "" {
		config.Collection = "events"
	}

	opts := options.Client().ApplyURI(config.URI)
	if config.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(config.MaxPoolSize)
	}
	if config.MinPoolSize > 0 {
		opts.SetMinPoolSize(config.MinPoolSize)
	}
	if config.Timeout > 0 {
		opts.SetTimeout(config.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(config.Database)
	collection := db.Collection(config.Collection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "aggregate_id", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "position", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "event_type", Value: 1}},
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoDBEventStore{
		config:       config,
		client:       client,
		collection:   collection,
		counters:     db.Collection(config.Collection + "_counters"),
		deserializer: deserializer,
	}, nil
}

func (s *MongoDBEventStore) Start(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoDBEventStore) Stop(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoDBEventStore) IsRunning() bool {
	return s.client != nil
}

// Database возвращает базу, в которой хранятся события
func (s *MongoDBEventStore) Database() *mongo.Database {
	return s.collection.Database()
}

// HealthCheck проверяет доступность MongoDB
func (s *MongoDBEventStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoDBEventStore) Name() string {
	return "mongodb-event-store"
}

func (s *MongoDBEventStore) Type() core.ComponentType {
	return core.ComponentTypeStore
}

// AppendEvents добавляет пакет событий в транзакции
func (s *MongoDBEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evts []events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(evts))
	now := time.Now().UTC()
	for i, event := range evts {
		eventData, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		docs = append(docs, eventDocument{
			EventID:       event.EventID(),
			AggregateID:   aggregateID,
			AggregateType: getAggregateType(event),
			EventType:     event.EventType(),
			EventData:     string(eventData),
			Metadata:      convertMetadata(event.Metadata()),
			Version:       expectedVersion + int64(i) + 1,
			OccurredAt:    event.OccurredAt(),
			CreatedAt:     now,
		})
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		currentVersion, err := s.currentVersion(sc, aggregateID)
		if err != nil {
			return nil, err
		}
		if expectedVersion != currentVersion {
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrConcurrencyConflict, expectedVersion, currentVersion)
		}

		last, err := s.reservePositions(sc, int64(len(docs)))
		if err != nil {
			return nil, err
		}
		first := last - int64(len(docs)) + 1
		for i := range docs {
			doc := docs[i].(eventDocument)
			doc.Position = first + int64(i)
			docs[i] = doc
		}

		if _, err := s.collection.InsertMany(sc, docs); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
			}
			return nil, fmt.Errorf("failed to insert events: %w", err)
		}
		return nil, nil
	})
	return err
}

func (s *MongoDBEventStore) currentVersion(ctx context.Context, aggregateID string) (int64, error) {
	var last eventDocument
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	err := s.collection.FindOne(ctx, bson.M{"aggregate_id": aggregateID}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find last event: %w", err)
	}
	return last.Version, nil
}

// reservePositions увеличивает глобальный счетчик позиций и возвращает последнюю выделенную
func (s *MongoDBEventStore) reservePositions(ctx context.Context, n int64) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "position"},
		bson.M{"$inc": bson.M{"value": n}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve positions: %w", err)
	}
	return counter.Value, nil
}

// GetEvents возвращает события агрегата
func (s *MongoDBEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error) {
	filter := bson.M{
		"aggregate_id": aggregateID,
		"version":      bson.M{"$gte": fromVersion},
	}
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	var result []StoredEvent
	for cursor.Next(ctx) {
		stored, err := s.decodeEvent(cursor)
		if err != nil {
			return nil, err
		}
		result = append(result, stored)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return result, nil
}

// GetAllEvents возвращает все события начиная с указанной позиции
func (s *MongoDBEventStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	filter := bson.M{"position": bson.M{"$gte": fromPosition}}
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}

	ch := make(chan StoredEvent, 100)
	go func() {
		defer close(ch)
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			stored, err := s.decodeEvent(cursor)
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

func (s *MongoDBEventStore) decodeEvent(cursor *mongo.Cursor) (StoredEvent, error) {
	var doc eventDocument
	if err := cursor.Decode(&doc); err != nil {
		return StoredEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}

	stored := StoredEvent{
		ID:            doc.EventID,
		AggregateID:   doc.AggregateID,
		AggregateType: doc.AggregateType,
		EventType:     doc.EventType,
		Metadata:      doc.Metadata,
		Version:       doc.Version,
		Position:      doc.Position,
		OccurredAt:    doc.OccurredAt,
		CreatedAt:     doc.CreatedAt,
	}
	if err := decodeRecord(s.deserializer, &stored, []byte(doc.EventData)); err != nil {
		return StoredEvent{}, fmt.Errorf("failed to deserialize event: %w", err)
	}
	return stored, nil
}
