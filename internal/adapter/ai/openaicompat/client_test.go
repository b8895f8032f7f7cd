package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

func newTestClient(url string) *Client {
	return New(Options{
		Name:             "groq",
		BaseURL:          url + "/",
		APIKey:           "k",
		Model:            "llama-3.1-8b-instant",
		Headers:          map[string]string{"X-Title": "AI Interview Assistant", "HTTP-Referer": ""},
		RateLimitBackoff: time.Millisecond,
		HTTPClient:       &http.Client{Timeout: 2 * time.Second},
	})
}

func TestChatJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "AI Interview Assistant", r.Header.Get("X-Title"))
		assert.Empty(t, r.Header.Get("HTTP-Referer"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-3.1-8b-instant", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		_, _ = w.Write([]byte(`{"model":"llama-3.1-8b-instant","choices":[{"message":{"content":"{\"score\":8,\"feedback\":\"good\"}"}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).ChatJSON(context.Background(), "judge", "rate this", 100)
	require.NoError(t, err)
	assert.Equal(t, `{"score":8,"feedback":"good"}`, out)
}

func TestChatJSON_RetriesOnceOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).ChatJSON(context.Background(), "", "hi", 10)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestChatJSON_PersistentRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ChatJSON(context.Background(), "", "hi", 10)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestChatJSON_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ChatJSON(context.Background(), "", "hi", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestChatJSON_ServerErrorAndEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	_, err := newTestClient(srv.URL).ChatJSON(context.Background(), "", "hi", 10)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()
	_, err = newTestClient(empty.URL).ChatJSON(context.Background(), "", "hi", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty choices")
}

func TestChatJSON_MissingKey(t *testing.T) {
	c := New(Options{Name: "openai", BaseURL: "http://unused"})
	_, err := c.ChatJSON(context.Background(), "", "hi", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, "openai", c.Provider())
}

func TestChatJSON_ClientTimeoutIsUpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv.URL)
	c.hc = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.ChatJSON(context.Background(), "judge", "rate this", 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestChatJSON_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).ChatJSON(context.Background(), "judge", "rate this", 100)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}
