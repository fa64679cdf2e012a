package api

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akriventsev/potter-inventory/framework/observability"
)

// ServiceName имя сервиса в gRPC health
const ServiceName = "inventory.ProductService"

// NewGRPCServer создает gRPC сервер со стандартным health сервисом.
// Статус SERVING выставляется вызывающим после запуска зависимостей.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.UnaryInterceptor(observability.GRPCTracingInterceptor()))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	return server, healthServer
}

// SetServing переключает статус сервиса и общий статус сервера
func SetServing(healthServer *health.Server, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	healthServer.SetServingStatus("", status)
	healthServer.SetServingStatus(ServiceName, status)
}
