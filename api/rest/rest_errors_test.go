package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spectra-gallery/spectra-playground/service"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad tag", service.ErrValidation), http.StatusBadRequest},
		{service.ErrUsernameTaken, http.StatusBadRequest},
		{service.ErrCryptoFailure, http.StatusBadRequest},
		{service.ErrUnauthorized, http.StatusUnauthorized},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("load: %w", service.ErrNotFound), http.StatusNotFound},
		{service.ErrRevisionConflict, http.StatusConflict},
		{service.ErrTooManyAttempts, http.StatusTooManyRequests},
		{fmt.Errorf("%w: neuralmap", service.ErrUpstream), http.StatusBadGateway},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("dynamo exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestSentinelMessage_HidesWrappedDetail(t *testing.T) {
	err := fmt.Errorf("%w: gcm: message authentication failed", service.ErrCryptoFailure)
	assert.Equal(t, "unable to decrypt resource", sentinelMessage(err))
}

func TestIPLimiter_PerKeyBuckets(t *testing.T) {
	l := newIPLimiter(0.001, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestClientIP(t *testing.T) {
	r := &http.Request{RemoteAddr: "192.0.2.7:51234"}
	assert.Equal(t, "192.0.2.7", clientIP(r))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientIP(r))
}
