package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-inventory/framework/adapters/messagebus"
	"github.com/akriventsev/potter-inventory/framework/events"
	"github.com/akriventsev/potter-inventory/framework/eventsourcing"
	"github.com/akriventsev/potter-inventory/framework/observability"
	"github.com/akriventsev/potter-inventory/framework/transport"
	"github.com/akriventsev/potter-inventory/internal/host"
	"github.com/akriventsev/potter-inventory/internal/product"
)

type relayFixture struct {
	runtime *host.Runtime
	relay   *eventsourcing.ProjectionRunner
}

func newRelayFixture(publisher transport.Publisher, config Config) *relayFixture {
	store := eventsourcing.NewInMemoryEventStore(eventsourcing.DefaultInMemoryEventStoreConfig())
	aggregate := product.NewAggregate(product.WithIDGenerator(product.IDGeneratorFunc(func(skuID string) string {
		return skuID + "-reorder"
	})))
	notifier := NewReorderNotifier(publisher, config, nil, nil)
	return &relayFixture{
		runtime: host.NewRuntime(aggregate, host.NewRepository(store, nil, eventsourcing.DefaultRepositoryConfig())),
		relay:   eventsourcing.NewProjectionRunner(notifier, store, eventsourcing.NewInMemoryCheckpointStore(), eventsourcing.DefaultProjectionConfig()),
	}
}

func (f *relayFixture) execute(t *testing.T, ctx context.Context, cmds ...product.Command) {
	t.Helper()
	for _, cmd := range cmds {
		_, err := f.runtime.Execute(ctx, cmd)
		require.NoError(t, err)
	}
}

func TestReorderNotifier_PublishesOnReorder(t *testing.T) {
	ctx := observability.WithCorrelationID(context.Background(), "corr-1")

	adapter := messagebus.NewInMemoryAdapter(messagebus.DefaultInMemoryConfig())
	require.NoError(t, adapter.Start(ctx))

	var received []*transport.Message
	require.NoError(t, adapter.Subscribe(ctx, DefaultSubject, func(ctx context.Context, msg *transport.Message) error {
		received = append(received, msg)
		return nil
	}))

	f := newRelayFixture(adapter, Config{TransportName: "inmemory"})
	f.execute(t, ctx,
		product.CreateProduct{SkuID: "sku-1", SkuName: "Widget", SkuPrice: decimal.NewFromInt(5)},
		product.AddStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityTotal: 100},
		product.UpdateStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityOrdered: 30},
	)
	_, err := f.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, received, "no reorder while available stays above threshold")

	f.execute(t, ctx, product.UpdateStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityOrdered: 60})
	_, err = f.relay.RunOnce(ctx)
	require.NoError(t, err)

	require.Len(t, received, 1)
	msg := received[0]
	assert.Equal(t, "sku-1", msg.Headers[HeaderSkuID])
	assert.Equal(t, product.EventTypeCreateStockOrderRequested, msg.Headers[HeaderEventType])
	assert.Equal(t, "corr-1", msg.Headers[HeaderCorrelationID])
	assert.NotEmpty(t, msg.Headers[HeaderEventID])

	var request StockOrderRequest
	require.NoError(t, json.Unmarshal(msg.Data, &request))
	assert.Equal(t, "sku-1-reorder", request.StockOrderID)
	assert.Equal(t, "Widget", request.SkuName)
	assert.Equal(t, 100, request.QuantityTotal)

	_, err = f.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, received, 1, "delivered request must not be published again")
}

// flakyPublisher отказывает первые failures вызовов
type flakyPublisher struct {
	failures  int
	delivered []string
}

func (p *flakyPublisher) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.delivered = append(p.delivered, headers[HeaderEventID])
	return nil
}

func TestReorderNotifier_RedeliversAfterBrokerOutage(t *testing.T) {
	publisher := &flakyPublisher{failures: 1}
	f := newRelayFixture(publisher, Config{
		RetryPolicy: &transport.ExponentialBackoffRetryPolicy{
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   2,
			MaxAttempts:  1,
		},
	})

	// Клиент отключается сразу после ответа: доставка не зависит от контекста запроса
	ctx, cancel := context.WithCancel(context.Background())
	f.execute(t, ctx,
		product.CreateProduct{SkuID: "sku-1", SkuName: "Widget"},
		product.UpdateProductsBackOrdered{SkuID: "sku-1", BackOrderedLot: product.BackOrderedLot{BackOrderedLotID: "lot-1", QuantityBackOrdered: 10}},
	)
	cancel()

	_, err := f.relay.RunOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, publisher.delivered)

	_, err = f.relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, publisher.delivered, 1)

	_, err = f.relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, publisher.delivered, 1)
}

func TestReorderNotifier_HandleEventFiltersByType(t *testing.T) {
	publisher := &flakyPublisher{}
	notifier := NewReorderNotifier(publisher, Config{}, nil, nil)
	assert.Equal(t, DefaultName, notifier.Name())

	created := host.NewEnvelope("sku-1", product.Created{SkuID: "sku-1"})
	require.NoError(t, notifier.HandleEvent(context.Background(), eventsourcing.StoredEvent{EventType: created.EventType(), EventData: created}))
	assert.Empty(t, publisher.delivered)

	requested := host.NewEnvelope("sku-1", product.CreateStockOrderRequested{StockOrderID: "so-2", SkuID: "sku-1", QuantityTotal: 100})
	require.NoError(t, notifier.HandleEvent(context.Background(), eventsourcing.StoredEvent{EventType: requested.EventType(), EventData: requested}))
	assert.Equal(t, []string{requested.EventID()}, publisher.delivered)
}

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	p.calls++
	return errors.New("broker unavailable")
}

func TestReorderNotifier_RetriesAndReturnsError(t *testing.T) {
	publisher := &failingPublisher{}
	notifier := NewReorderNotifier(publisher, Config{
		Subject: "reorders",
		RetryPolicy: &transport.ExponentialBackoffRetryPolicy{
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   2,
			MaxAttempts:  3,
		},
	}, nil, nil)

	env := host.NewEnvelope("sku-1", product.CreateStockOrderRequested{StockOrderID: "so-9", SkuID: "sku-1", QuantityTotal: 100})
	err := notifier.Handle(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "so-9")
	assert.Equal(t, 3, publisher.calls)
}

func TestReorderNotifier_IgnoresOtherEvents(t *testing.T) {
	publisher := &failingPublisher{}
	notifier := NewReorderNotifier(publisher, Config{}, nil, nil)

	require.NoError(t, notifier.Handle(context.Background(), host.NewEnvelope("sku-1", product.Created{SkuID: "sku-1"})))
	require.NoError(t, notifier.Handle(context.Background(), events.NewBaseEvent(product.EventTypeCreateStockOrderRequested, "sku-1")))
	assert.Zero(t, publisher.calls)
}
