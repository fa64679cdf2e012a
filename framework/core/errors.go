// Package core предоставляет систему ошибок фреймворка.
package core

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Коды ошибок фреймворка
const (
	ErrNotFound             = "NOT_FOUND"
	ErrInvalidArgument      = "INVALID_ARGUMENT"
	ErrConcurrencyConflict  = "CONCURRENCY_CONFLICT"
	ErrInvalidConfig        = "INVALID_CONFIG"
	ErrInitializationFailed = "INITIALIZATION_FAILED"
)

// FrameworkError базовый тип ошибки фреймворка
type FrameworkError struct {
	Code       string
	Message    string
	Cause      error
	StackTrace string
}

// Error реализует интерфейс error
func (e *FrameworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *FrameworkError) Unwrap() error {
	return e.Cause
}

// Is проверяет, соответствует ли ошибка коду
func (e *FrameworkError) Is(target error) bool {
	if t, ok := target.(*FrameworkError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError создает новую ошибку фреймворка
func NewError(code, message string) *FrameworkError {
	return &FrameworkError{
		Code:       code,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// Sentinel создает ошибку-образец для сравнения через errors.Is.
// Stack trace не захватывается: значение создается один раз при инициализации пакета.
func Sentinel(code string) *FrameworkError {
	return &FrameworkError{Code: code, Message: strings.ToLower(strings.ReplaceAll(code, "_", " "))}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code, message string) *FrameworkError {
	if err == nil {
		return nil
	}
	return &FrameworkError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// CodeOf возвращает код первой FrameworkError в цепочке или пустую строку
func CodeOf(err error) string {
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// captureStackTrace захватывает stack trace
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// Убираем первые несколько строк (сама функция captureStackTrace)
	lines := strings.Split(stack, "\n")
	if len(lines) > 4 {
		lines = lines[4:]
	}
	return strings.Join(lines, "\n")
}
