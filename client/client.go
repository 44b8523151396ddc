package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sajjad-MoBe/lsmstore/internal/api"
	kvErr "github.com/sajjad-MoBe/lsmstore/internal/errors"
	"github.com/sajjad-MoBe/lsmstore/internal/storage"
)

// Client talks to the HTTP API of a single lsmstore node
type Client struct {
	baseURL string
	// HTTP client for making requests
	httpClient *http.Client
	// Retry configuration
	retryConfig RetryConfig
}

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		Timeout:    5 * time.Second,
	}
}

// StatusError is returned for a response the server answered with an error
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// NewClient creates a new client instance. address may be "host:port" or a
// full http URL.
func NewClient(address string, retryConfig RetryConfig) *Client {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	if retryConfig.MaxRetries <= 0 {
		retryConfig.MaxRetries = 1
	}

	return &Client{
		baseURL: strings.TrimRight(address, "/"),
		httpClient: &http.Client{
			Timeout: retryConfig.Timeout,
		},
		retryConfig: retryConfig,
	}
}

// Put stores a key-value pair
func (c *Client) Put(key string, value []byte) error {
	body, err := json.Marshal(map[string]string{"value": string(value)})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	_, err = c.do(http.MethodPut, "/kv/"+url.PathEscape(key), body)
	return err
}

// Get retrieves the value for key. found is false only when the node
// answers with a NOT_FOUND error; any other 404 is returned as an error.
func (c *Client) Get(key string) (value []byte, found bool, err error) {
	data, err := c.do(http.MethodGet, "/kv/"+url.PathEscape(key), nil)
	if err != nil {
		if se, ok := err.(*StatusError); ok && se.Type == string(kvErr.ErrorTypeNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var resp api.KeyValueResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	return []byte(resp.Value), true, nil
}

// Flush asks the node to flush its memtable and returns the resulting stats
func (c *Client) Flush() (storage.Stats, error) {
	return c.stats(http.MethodPost, "/admin/flush")
}

// Stats returns the node's engine statistics
func (c *Client) Stats() (storage.Stats, error) {
	return c.stats(http.MethodGet, "/stats")
}

func (c *Client) stats(method, path string) (storage.Stats, error) {
	var stats storage.Stats
	data, err := c.do(method, path, nil)
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("failed to decode response: %w", err)
	}
	return stats, nil
}

// do sends the request, retrying on transport errors and 5xx responses.
// 4xx responses are returned immediately.
func (c *Client) do(method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for i := 0; i < c.retryConfig.MaxRetries; i++ {
		if i > 0 {
			// Wait before retry
			time.Sleep(c.retryConfig.RetryDelay)
		}

		req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}

		statusErr := decodeStatusError(resp.StatusCode, data)
		if resp.StatusCode < 500 {
			return nil, statusErr
		}
		lastErr = statusErr
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func decodeStatusError(code int, data []byte) *StatusError {
	statusErr := &StatusError{StatusCode: code}

	var resp api.ErrorResponse
	if err := json.Unmarshal(data, &resp); err == nil {
		statusErr.Type = resp.Error.Type
		statusErr.Message = resp.Error.Message
	}
	return statusErr
}
