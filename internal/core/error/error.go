package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// ModelErrorMessage describes a failed text completion call.
	ModelErrorMessage = "text completion failed"
	// StoreCorruptionMessage describes an unreadable memory document.
	StoreCorruptionMessage = "memory document is corrupt"
	// StoreErrorMessage describes a failed memory document write or read.
	StoreErrorMessage = "memory store operation failed"
)

// Kind classifies an AppError so callers can decide how to recover.
type Kind string

const (
	KindSystem          Kind = "system"
	KindModel           Kind = "model"
	KindStoreCorruption Kind = "store_corruption"
	KindStore           Kind = "store"
	KindStep            Kind = "step"
	KindRedis           Kind = "redis"
	KindValidation      Kind = "validation"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
	// Step names the graph node that failed, set for KindStep only.
	Step string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.Step != "" {
		msg = fmt.Sprintf("%s (step %s)", msg, e.Step)
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
		Kind:    KindSystem,
	}
}

// WrapModel marks a failed completion call. Every caller recovers these locally.
func WrapModel(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Message: ModelErrorMessage, Kind: KindModel}
}

// WrapStoreCorruption marks a memory document that could not be decoded.
func WrapStoreCorruption(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Err: err, Status: http.StatusInternalServerError, Message: StoreCorruptionMessage, Kind: KindStoreCorruption}
}

// WrapStore marks a failed read or write of the memory document.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}
	var app *AppError
	if errors.As(err, &app) && app.Kind == KindRedis {
		return err
	}
	return &AppError{Err: err, Status: http.StatusInternalServerError, Message: StoreErrorMessage, Kind: KindStore}
}

// WrapStep marks an unrecoverable failure inside a graph step.
func WrapStep(step string, err error) error {
	if err == nil {
		return nil
	}
	var app *AppError
	if errors.As(err, &app) && app.Kind == KindStep {
		return err
	}
	return &AppError{Err: err, Status: http.StatusInternalServerError, Message: "workflow step failed", Kind: KindStep, Step: step}
}

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return &AppError{Err: err, Status: http.StatusNotFound, Message: RedisNotFoundMessage, Kind: KindRedis}
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Message: RedisErrorMessage, Kind: KindRedis}
}

// NewValidation reports bad caller input.
func NewValidation(message string) error {
	return &AppError{Status: http.StatusBadRequest, Message: message, Kind: KindValidation}
}

// IsKind reports whether any AppError in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var app *AppError
	for err != nil {
		if !errors.As(err, &app) {
			return false
		}
		if app.Kind == kind {
			return true
		}
		err = app.Err
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var app *AppError
	if errors.As(err, &app) && app.Status != 0 {
		return app.Status
	}
	return http.StatusInternalServerError
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
