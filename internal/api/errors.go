package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/akriventsev/potter-inventory/framework/core"
)

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toStatus переводит ошибку в gRPC статус по коду ошибки фреймворка
func toStatus(err error) *status.Status {
	var fe *core.FrameworkError
	message := err.Error()
	if errors.As(err, &fe) {
		message = fe.Message
	}

	switch core.CodeOf(err) {
	case core.ErrInvalidArgument:
		return status.New(codes.InvalidArgument, message)
	case core.ErrNotFound:
		return status.New(codes.NotFound, message)
	case core.ErrConcurrencyConflict:
		return status.New(codes.Aborted, message)
	case core.ErrInvalidConfig:
		return status.New(codes.FailedPrecondition, message)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, message)
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, message)
	}
	return status.New(codes.Internal, "internal error")
}

// httpStatus HTTP статус для gRPC кода
func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Aborted, codes.AlreadyExists:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	st := toStatus(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(httpStatus(st.Code()), ErrorResponse{
		Code:    st.Code().String(),
		Message: st.Message(),
	})
}

func badRequest(c *gin.Context, err error) {
	writeError(c, core.Wrap(err, core.ErrInvalidArgument, "invalid request body"))
}
