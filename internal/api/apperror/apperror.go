package apperror

import (
	"errors"
	"net/http"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
)

type Code string

const (
	BadRequest  Code = "BAD_REQUEST"
	NotFound    Code = "NOT_FOUND"
	Conflict    Code = "CONFLICT"
	RateLimited Code = "RATE_LIMITED"
	BadGateway  Code = "BACKEND_ERROR"
	Unavailable Code = "UNAVAILABLE"
	Internal    Code = "INTERNAL"
)

type AppError struct {
	code    Code
	message string
	err     error
}

func New(code Code, message string) *AppError {
	return &AppError{code: code, message: message}
}

// Wrap keeps err for logging while exposing only message to clients
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{code: code, message: message, err: err}
}

func (e *AppError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *AppError) Unwrap() error   { return e.err }
func (e *AppError) Code() Code      { return e.code }
func (e *AppError) Message() string { return e.message }

func (e *AppError) HTTPStatus() int {
	switch e.code {
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case BadGateway:
		return http.StatusBadGateway
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromDomain maps analysis errors onto coded HTTP errors
func FromDomain(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case errors.Is(err, domain.ErrEmptySymbol),
		errors.Is(err, domain.ErrUnknownMode),
		errors.Is(err, domain.ErrUnknownFrequency):
		return Wrap(BadRequest, err.Error(), err)
	case errors.Is(err, domain.ErrSuperseded):
		return Wrap(Conflict, "analysis was superseded by a newer submission", err)
	case domain.IsPhase(err, domain.PhaseSubmit):
		return Wrap(BadGateway, "could not start analysis", err)
	default:
		return Wrap(Internal, "internal server error", err)
	}
}
