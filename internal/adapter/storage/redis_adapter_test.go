package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stockroom/internal/port"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func startSubscriber(t *testing.T, adapter *RedisAdapter, topics []string, handle func(port.Envelope)) (context.CancelFunc, *sync.WaitGroup) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		adapter.Subscribe(ctx, topics, handle)
	}()

	// Give the subscription time to register before publishing
	time.Sleep(100 * time.Millisecond)
	return cancel, &wg
}

func TestRedisRelay_DeliverAndSubscribe(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	adapter := NewRedisAdapter(client)
	received := make(chan port.Envelope, 1)

	cancel, wg := startSubscriber(t, adapter, []string{port.TopicScanCorrelated}, func(env port.Envelope) {
		received <- env
	})
	defer func() {
		cancel()
		wg.Wait()
	}()

	env := port.Envelope{
		ID:          "env-1",
		Topic:       port.TopicScanCorrelated,
		Payload:     map[string]any{"code": "A1", "weight": 12.3},
		PublishedAt: time.Now().UTC(),
	}
	if err := adapter.Deliver(context.Background(), env); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != "env-1" || got.Topic != port.TopicScanCorrelated {
			t.Errorf("unexpected envelope: %+v", got)
		}
		raw, ok := got.Payload.(json.RawMessage)
		if !ok {
			t.Fatalf("expected raw payload, got %T", got.Payload)
		}
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("payload decode failed: %v", err)
		}
		if payload["code"] != "A1" {
			t.Errorf("expected code A1, got %v", payload["code"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed envelope")
	}
}

func TestRedisRelay_IgnoresOtherTopics(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	adapter := NewRedisAdapter(client)
	var count atomic.Int32

	cancel, wg := startSubscriber(t, adapter, []string{port.TopicTelemetryNew}, func(port.Envelope) {
		count.Add(1)
	})

	adapter.Deliver(context.Background(), port.Envelope{ID: "x", Topic: port.TopicInventoryChanged, Payload: "ignored"})
	adapter.Deliver(context.Background(), port.Envelope{ID: "y", Topic: port.TopicTelemetryNew, Payload: "kept"})

	time.Sleep(200 * time.Millisecond)
	cancel()
	wg.Wait()

	if count.Load() != 1 {
		t.Errorf("expected 1 relayed envelope, got %d", count.Load())
	}
}
