package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interviewer/internal/config"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("op=x: %w", domain.ErrUserNotFound), http.StatusNotFound},
		{domain.ErrAttemptNotFound, http.StatusNotFound},
		{domain.ErrInvalidSlot, http.StatusBadRequest},
		{domain.ErrAttemptClosed, http.StatusConflict},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{domain.ErrUpstreamRateLimit, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, _ := statusFor(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestWriteError_Envelope(t *testing.T) {
	cause := fmt.Errorf("op=repo.get: %w", errors.New("connection refused"))

	for _, env := range []string{"dev", "prod"} {
		s := &Server{Cfg: config.Config{AppEnv: env}}
		rec := httptest.NewRecorder()
		s.writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), cause, nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Server error", body["message"])
		if env == "dev" {
			assert.Equal(t, cause.Error(), body["error"])
		} else {
			assert.NotContains(t, body, "error")
		}
	}
}

func TestWriteError_ClientMessageVerbatim(t *testing.T) {
	s := &Server{Cfg: config.Config{AppEnv: "prod"}}
	rec := httptest.NewRecorder()
	err := fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	s.writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), err, map[string]string{"email": "required"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"invalid argument: email is required","details":{"email":"required"}}`, rec.Body.String())
}
