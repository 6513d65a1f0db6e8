package api

import (
	"errors"
	"net/http"

	"github.com/beepbeepai/alttext-api/internal/generation"
	"github.com/beepbeepai/alttext-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error text to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrJobNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrActiveJobExists):
		return http.StatusConflict

	case errors.Is(err, generation.ErrQuotaExceeded):
		return http.StatusTooManyRequests

	case errors.Is(err, generation.ErrAuthRequired):
		return http.StatusUnauthorized

	case errors.Is(err, generation.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge

	default:
		return http.StatusInternalServerError
	}
}
