package grpcPack

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/sajjad-MoBe/lsmstore/internal/shared"
	"github.com/sajjad-MoBe/lsmstore/internal/storage"
)

const bufSize = 1024 * 1024

type fakeSource struct {
	mu    sync.Mutex
	stats storage.Stats
}

func (f *fakeSource) Stats() storage.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeSource) setFlushError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.LastFlushError = msg
}

func setupTestServer(t *testing.T, source StatsSource) (*Server, healthpb.HealthClient) {
	lis := bufconn.Listen(bufSize)
	server := NewServer(source, shared.NewNopLogger())
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return server, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthServing(t *testing.T) {
	_, client := setupTestServer(t, &fakeSource{})

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))
}

func TestHealthFollowsFlushErrors(t *testing.T) {
	source := &fakeSource{}
	server, client := setupTestServer(t, source)

	source.setFlushError("IO_ERROR: failed to write table file")
	server.Refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))

	source.setFlushError("")
	server.Refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))
}

func TestHealthWatch(t *testing.T) {
	source := &fakeSource{}
	server, client := setupTestServer(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Watch(ctx, 10*time.Millisecond)

	source.setFlushError("boom")
	assert.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthWithEngine(t *testing.T) {
	engine, err := storage.Open(storage.Config{
		Dir:                    t.TempDir(),
		MemTableFlushThreshold: 4,
		Logger:                 shared.NewNopLogger(),
	})
	require.NoError(t, err)
	defer engine.Close()

	_, client := setupTestServer(t, engine)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))
}
