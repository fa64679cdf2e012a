package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-inventory/framework/core"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.GRPCPort)
	assert.Equal(t, "inmemory", cfg.EventStore)
	assert.Equal(t, "none", cfg.SnapshotStore)
	assert.Equal(t, "inmemory", cfg.MessageBus)
	assert.Equal(t, 100, cfg.ReorderQuantity)
	assert.Equal(t, int64(10), cfg.SnapshotFrequency)
	assert.Equal(t, time.Hour, cfg.SnapshotInterval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.PublishEvents)
	assert.Equal(t, "inventory.events", cfg.EventsSubjectPrefix)
	assert.Equal(t, "inventory.events.dlq", cfg.DeadLetterSubject)
	assert.Equal(t, 5*time.Second, cfg.RelayInterval)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("EVENT_STORE", "postgres")
	t.Setenv("SNAPSHOT_STORE", "redis")
	t.Setenv("MESSAGE_BUS", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REORDER_QUANTITY", "40")
	t.Setenv("SNAPSHOT_INTERVAL", "15m")
	t.Setenv("PUBLISH_DOMAIN_EVENTS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.EventStore)
	assert.Equal(t, "redis", cfg.SnapshotStore)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 40, cfg.ReorderQuantity)
	assert.Equal(t, 15*time.Minute, cfg.SnapshotInterval)
	assert.True(t, cfg.PublishEvents)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"EVENT_STORE":           "cassandra",
		"MESSAGE_BUS":           "rabbitmq",
		"TRACING_EXPORTER":      "datadog",
		"REORDER_QUANTITY":      "-1",
		"SNAPSHOT_FREQUENCY":    "often",
		"SNAPSHOT_STORE":        "postgres",
		"PUBLISH_DOMAIN_EVENTS": "maybe",
		"RELAY_INTERVAL":        "0s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.Sentinel(core.ErrInvalidConfig)))
		})
	}
}

func TestLoad_SnapshotStoreMustNotOutliveEventStore(t *testing.T) {
	t.Setenv("SNAPSHOT_STORE", "redis")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.Sentinel(core.ErrInvalidConfig)))
	assert.Contains(t, err.Error(), "SNAPSHOT_STORE=redis")

	t.Setenv("EVENT_STORE", "mongodb")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.SnapshotStore)

	t.Setenv("EVENT_STORE", "inmemory")
	t.Setenv("SNAPSHOT_STORE", "inmemory")
	_, err = Load()
	require.NoError(t, err)
}
