// Package tika provides Apache Tika integration for resume text extraction.
//
// Uploaded PDF and DOCX bytes are sent to a Tika server and the plain text
// reply is normalized line by line so callers can still reason about the
// document header.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/pkg/textx"
)

const defaultBaseURL = "http://localhost:9998"

// maxExtractedBytes caps the plain text read back from Tika.
const maxExtractedBytes = 2 << 20

// Client sends resumes to a Tika server (PUT /tika, Accept: text/plain).
type Client struct {
	baseURL string
	hc      *http.Client
}

var _ domain.TextExtractor = (*Client)(nil)

// New builds a client with an otelhttp transport. A non-positive timeout
// means 15s.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Extract returns the document text with whitespace normalized per line.
// Documents Tika cannot parse are the caller's fault, not an outage.
func (c *Client) Extract(ctx context.Context, fileName string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("op=tika.extract: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if ct := mediaType(fileName); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=tika.extract: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType, resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("op=tika.extract: %w: unreadable document %q", domain.ErrInvalidArgument, fileName)
	case resp.StatusCode/100 != 2:
		return "", fmt.Errorf("op=tika.extract: %w: status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractedBytes))
	if err != nil {
		return "", fmt.Errorf("op=tika.extract: read: %w", err)
	}
	return textx.NormalizeLines(string(body)), nil
}

// Ping is the readiness probe: GET /version must answer 200.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return fmt.Errorf("op=tika.ping: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("op=tika.ping: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("op=tika.ping: status %d", resp.StatusCode)
	}
	return nil
}

var resumeMediaTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
}

func mediaType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ct, ok := resumeMediaTypes[ext]; ok {
		return ct
	}
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(ext)
}
