package client

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajjad-MoBe/lsmstore/internal/api"
	"github.com/sajjad-MoBe/lsmstore/internal/shared"
	"github.com/sajjad-MoBe/lsmstore/internal/storage"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		Timeout:    2 * time.Second,
	}
}

func setupTestNode(t *testing.T, threshold int) (*Client, *storage.Engine) {
	engine, err := storage.Open(storage.Config{
		Dir:                    t.TempDir(),
		MemTableFlushThreshold: threshold,
		Logger:                 shared.NewNopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	server := httptest.NewServer(api.NewServer(engine, api.Options{Logger: shared.NewNopLogger()}).Handler())
	t.Cleanup(server.Close)

	return NewClient(server.URL, testRetryConfig()), engine
}

func TestClientPutGet(t *testing.T) {
	client, _ := setupTestNode(t, 100)

	require.NoError(t, client.Put("key1", []byte("value1")))

	value, found, err := client.Get("key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", string(value))

	_, found, err = client.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClientKeyEscaping(t *testing.T) {
	client, engine := setupTestNode(t, 100)

	require.NoError(t, client.Put("a b?c", []byte("v")))

	value, found, err := engine.Get([]byte("a b?c"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", string(value))
}

func TestClientFlushAndStats(t *testing.T) {
	client, engine := setupTestNode(t, 100)

	require.NoError(t, client.Put("a", []byte("1")))
	require.NoError(t, client.Put("b", []byte("2")))

	stats, err := client.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MemTableKeys)

	stats, err = client.Flush()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.MemTableKeys)
	assert.Equal(t, 1, stats.Tables)
	assert.Len(t, engine.Tables(), 1)

	_, found, err := client.Get("a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, testRetryConfig())
	require.NoError(t, client.Put("k", []byte("v")))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, testRetryConfig())
	err := client.Put("k", []byte("v"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"INVALID_ARGUMENT","message":"key is required"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testRetryConfig())
	err := client.Put("k", []byte("v"))
	require.Error(t, err)

	statusErr, ok := err.(*StatusError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", statusErr.Type)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewClientAddsScheme(t *testing.T) {
	client := NewClient("localhost:8080/", DefaultRetryConfig())
	assert.Equal(t, "http://localhost:8080", client.baseURL)
}

func TestClientKeysWithSlashes(t *testing.T) {
	client, engine := setupTestNode(t, 100)

	require.NoError(t, client.Put("a/b", []byte("1")))
	value, found, err := engine.Get([]byte("a/b"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", string(value))

	require.NoError(t, engine.Put([]byte("dir/../x"), []byte("2")))
	got, found, err := client.Get("dir/../x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", string(got))

	_, found, err = client.Get("a/missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClientRouteMissIsAnError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := NewClient(server.URL, testRetryConfig())
	_, found, err := client.Get("k")
	require.Error(t, err)
	assert.False(t, found)

	statusErr, ok := err.(*StatusError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
