package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/eventsourcing"
	"github.com/akriventsev/potter-inventory/framework/observability"
	"github.com/akriventsev/potter-inventory/internal/host"
	"github.com/akriventsev/potter-inventory/internal/product"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := eventsourcing.NewInMemoryEventStore(eventsourcing.DefaultInMemoryEventStoreConfig())
	aggregate := product.NewAggregate(product.WithIDGenerator(product.IDGeneratorFunc(func(skuID string) string {
		return skuID + "-reorder"
	})))
	runtime := host.NewRuntime(aggregate, host.NewRepository(store, nil, eventsourcing.DefaultRepositoryConfig()))

	return NewRouter(RouterConfig{
		Service:        runtime,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("metrics")) }),
	})
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_ProductLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/product/sku-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodPut, "/product/sku-1/create", `{"skuName":"Widget","skuDescription":"A widget","skuPrice":"9.99"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(observability.CorrelationIDHeader))

	rec = do(router, http.MethodPut, "/product/sku-1/add-stock-order", `{"stockOrderId":"so-1","quantityTotal":100}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(router, http.MethodPut, "/product/sku-1/update-stock-order", `{"stockOrderId":"so-1","quantityOrdered":60}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(router, http.MethodPut, "/product/sku-1/update-units-back-ordered", `{"backOrderedLot":{"backOrderedLotId":"lot-1","quantityBackOrdered":10}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(router, http.MethodGet, "/product/sku-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state product.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "Widget", state.SkuName)
	assert.Equal(t, 140, state.Available)
	assert.Equal(t, 10, state.BackOrdered)
	assert.Equal(t, "9.99", state.SkuPrice.String())

	rec = do(router, http.MethodGet, "/product/sku-1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var history []struct {
		Version   int64  `json:"version"`
		EventType string `json:"eventType"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 6)
	assert.Equal(t, product.EventTypeCreateStockOrderRequested, history[4].EventType)
	assert.Equal(t, int64(6), history[5].Version)
}

func TestRouter_ErrorMapping(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodPut, "/product/sku-1/create", `{"skuId":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "InvalidArgument", body.Code)

	rec = do(router, http.MethodPut, "/product/sku-1/add-stock-order", `{"quantityTotal":"many"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/product/missing/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestRouter_Readiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := healthFunc(func(context.Context) error { return nil })
	broken := healthFunc(func(context.Context) error { return errors.New("connection refused") })

	router := NewRouter(RouterConfig{HealthChecks: map[string]core.HealthCheckable{"event-store": healthy}})
	rec := do(router, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	router = NewRouter(RouterConfig{HealthChecks: map[string]core.HealthCheckable{"event-store": healthy, "message-bus": broken}})
	rec = do(router, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","failed":{"message-bus":"connection refused"}}`, rec.Body.String())
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{core.NewError(core.ErrInvalidArgument, "bad"), http.StatusBadRequest},
		{core.NewError(core.ErrNotFound, "missing"), http.StatusNotFound},
		{eventsourcing.ErrConcurrencyConflict, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, httpStatus(toStatus(c.err).Code()), c.err.Error())
	}
	assert.Equal(t, "internal error", toStatus(assert.AnError).Message())
	assert.Equal(t, "missing", toStatus(core.NewError(core.ErrNotFound, "missing")).Message())
}

func TestGRPCHealth(t *testing.T) {
	server, healthServer := NewGRPCServer()
	defer server.Stop()

	resp, err := healthServer.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	SetServing(healthServer, true)
	resp, err = healthServer.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
