// Package actinia is the client for the actinia GRASS GIS processing engine.
package actinia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Config holds the engine endpoint and credentials.
type Config struct {
	BaseURL  string
	User     string
	Password string
	Timeout  time.Duration
}

// Client talks to one engine instance. Every request carries a bounded
// timeout and goes through a circuit breaker.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   logrus.FieldLogger
}

var errServerStatus = errors.New("engine returned a server error")

// NewClient constructs a new engine client.
func NewClient(cfg Config, logger logrus.FieldLogger) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:  strings.TrimRight(parsed.String(), "/"),
		user:     cfg.User,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "actinia",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
		}),
		logger: logger,
	}, nil
}

// Response is a raw engine answer.
type Response struct {
	StatusCode int
	Body       []byte
}

// Path joins escaped path segments into an engine route.
func Path(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// do sends one request. Only transport failures and 5xx answers are returned
// as errors; any other status is left to the caller to classify.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	var requestBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		requestBody = bytes.NewReader(encoded)
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, requestBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		out := &Response{StatusCode: resp.StatusCode, Body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return out, errServerStatus
		}
		return out, nil
	})

	entry := c.logger.WithFields(logrus.Fields{"method": method, "path": path, "duration": time.Since(start)})
	resp, _ := result.(*Response)
	if errors.Is(err, errServerStatus) && resp != nil {
		entry.WithField("status_code", resp.StatusCode).Warn("engine server error")
		return resp, nil
	}
	if err != nil {
		entry.WithError(err).Warn("engine request failed")
		return nil, err
	}
	entry.WithField("status_code", resp.StatusCode).Debug("engine request")
	return resp, nil
}

// Forward performs a passthrough call and returns the engine answer as is.
func (c *Client) Forward(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	resp, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return nil, &TransientOrFatalError{Op: method + " " + path, Cause: err}
	}
	return resp, nil
}
