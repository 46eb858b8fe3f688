package handler

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/stockroom/internal/adapter/storage"
)

type downStore struct {
	*storage.MemoryAdapter
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func dialHealth(t *testing.T, h *GRPCHandler) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	h.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestGRPCHealth_Serving(t *testing.T) {
	h := NewGRPCHandler(storage.NewMemoryAdapter())
	client := dialHealth(t, h)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, h.Refresh(context.Background()))

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: LedgerServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCHealth_StoreDown(t *testing.T) {
	h := NewGRPCHandler(downStore{storage.NewMemoryAdapter()})
	client := dialHealth(t, h)

	h.Refresh(context.Background())

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: LedgerServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
