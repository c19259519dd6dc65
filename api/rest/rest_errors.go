package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/spectra-gallery/spectra-playground/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a service error to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrCryptoFailure):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRevisionConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err as a JSON error body. Only validation errors carry
// their detail to the client; everything else gets the sentinel's message
// or a generic one.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	msg := "internal error"
	switch {
	case errors.Is(err, service.ErrValidation):
		msg = err.Error()
	case status == http.StatusServiceUnavailable:
		msg = "request cancelled"
	case status != http.StatusInternalServerError:
		msg = sentinelMessage(err)
	}

	if status >= http.StatusInternalServerError {
		h.Log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.Log.Debug(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "status", status)
	}

	h.sendError(w, status, msg)
}

var sentinels = []error{
	service.ErrUsernameTaken,
	service.ErrUnauthorized,
	service.ErrInvalidCredentials,
	service.ErrForbidden,
	service.ErrNotFound,
	service.ErrCryptoFailure,
	service.ErrTooManyAttempts,
	service.ErrRevisionConflict,
	service.ErrUpstream,
}

func sentinelMessage(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func (h *Handler) sendError(w http.ResponseWriter, status int, msg string) {
	h.sendResponse(w, status, errorResponse{Error: msg})
}
