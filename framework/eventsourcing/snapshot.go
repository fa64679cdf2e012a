package eventsourcing

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Snapshot представляет снапшот состояния агрегата
type Snapshot struct {
	AggregateID   string                 `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	Version       int64                  `json:"version"`
	State         []byte                 `json:"state"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// SnapshotStore интерфейс для хранения снапшотов
type SnapshotStore interface {
	// SaveSnapshot сохраняет снапшот агрегата
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error

	// GetSnapshot возвращает последний снапшот агрегата или nil, если его нет
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)

	// DeleteSnapshots удаляет старые снапшоты до указанной версии
	DeleteSnapshots(ctx context.Context, aggregateID string, beforeVersion int64) error
}

// SnapshotSerializer интерфейс для сериализации состояния агрегата
type SnapshotSerializer interface {
	Serialize(state interface{}) ([]byte, error)
	Deserialize(data []byte, state interface{}) error
}

// JSONSnapshotSerializer реализация SnapshotSerializer с использованием JSON
type JSONSnapshotSerializer struct{}

// NewJSONSnapshotSerializer создает новый JSON сериализатор
func NewJSONSnapshotSerializer() *JSONSnapshotSerializer {
	return &JSONSnapshotSerializer{}
}

func (s *JSONSnapshotSerializer) Serialize(state interface{}) ([]byte, error) {
	return json.Marshal(state)
}

func (s *JSONSnapshotSerializer) Deserialize(data []byte, state interface{}) error {
	return json.Unmarshal(data, state)
}

// SnapshotStrategy решает, нужно ли сохранить снапшот после записи пакета,
// переведшего поток из previousVersion в currentVersion
type SnapshotStrategy interface {
	ShouldCreateSnapshot(aggregateID string, previousVersion, currentVersion int64) bool
}

// FrequencySnapshotStrategy создает снапшот каждые N событий.
// Пакет, перешагнувший границу кратности, тоже приводит к снапшоту.
type FrequencySnapshotStrategy struct {
	Frequency int64
}

// NewFrequencySnapshotStrategy создает стратегию по частоте
func NewFrequencySnapshotStrategy(frequency int64) *FrequencySnapshotStrategy {
	return &FrequencySnapshotStrategy{
		Frequency: frequency,
	}
}

func (s *FrequencySnapshotStrategy) ShouldCreateSnapshot(aggregateID string, previousVersion, currentVersion int64) bool {
	if s.Frequency <= 0 || currentVersion <= previousVersion {
		return false
	}
	return currentVersion/s.Frequency > previousVersion/s.Frequency
}

// TimeBasedSnapshotStrategy создает снапшот агрегата не чаще одного раза за интервал
type TimeBasedSnapshotStrategy struct {
	Interval time.Duration

	mu            sync.Mutex
	lastSnapshots map[string]time.Time
	now           func() time.Time
}

// NewTimeBasedSnapshotStrategy создает стратегию по времени
func NewTimeBasedSnapshotStrategy(interval time.Duration) *TimeBasedSnapshotStrategy {
	return &TimeBasedSnapshotStrategy{
		Interval:      interval,
		lastSnapshots: make(map[string]time.Time),
		now:           time.Now,
	}
}

func (s *TimeBasedSnapshotStrategy) ShouldCreateSnapshot(aggregateID string, previousVersion, currentVersion int64) bool {
	if s.Interval <= 0 || currentVersion <= previousVersion {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	last, seen := s.lastSnapshots[aggregateID]
	if !seen {
		// Отсчет интервала начинается с первой записи агрегата
		s.lastSnapshots[aggregateID] = now
		return false
	}
	if now.Sub(last) >= s.Interval {
		s.lastSnapshots[aggregateID] = now
		return true
	}
	return false
}

// HybridSnapshotStrategy комбинирует частоту и время
type HybridSnapshotStrategy struct {
	FrequencyStrategy *FrequencySnapshotStrategy
	TimeStrategy      *TimeBasedSnapshotStrategy
}

// NewHybridSnapshotStrategy создает гибридную стратегию
func NewHybridSnapshotStrategy(frequency int64, interval time.Duration) *HybridSnapshotStrategy {
	return &HybridSnapshotStrategy{
		FrequencyStrategy: NewFrequencySnapshotStrategy(frequency),
		TimeStrategy:      NewTimeBasedSnapshotStrategy(interval),
	}
}

func (s *HybridSnapshotStrategy) ShouldCreateSnapshot(aggregateID string, previousVersion, currentVersion int64) bool {
	byFrequency := s.FrequencyStrategy.ShouldCreateSnapshot(aggregateID, previousVersion, currentVersion)
	byTime := s.TimeStrategy.ShouldCreateSnapshot(aggregateID, previousVersion, currentVersion)
	return byFrequency || byTime
}
