//go:build integration

package queue

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisAddr string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}
	redisAddr = fmt.Sprintf("%s:%s", host, port.Port())

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}
	os.Exit(code)
}

func newTestRedisQueue(t *testing.T, lease time.Duration, maxDeliveries int) (*RedisQueue, *redis.Client) {
	t.Helper()
	cfg := Config{
		RedisAddr:     redisAddr,
		Name:          "test:" + t.Name(),
		LeaseTimeout:  lease,
		MaxDeliveries: maxDeliveries,
	}
	client := NewRedisClient(cfg)
	t.Cleanup(func() { client.Close() })
	return NewRedisQueue(client, cfg, zerolog.Nop()), client
}

func enqueueN(t *testing.T, q *RedisQueue, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for range n {
		item := NewItem("acme", "64b7f0c2a1d3e4f5a6b7c8d9", nil)
		if err := q.Enqueue(context.Background(), item); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		ids = append(ids, item.ID)
	}
	return ids
}

func TestRedisQueue_FIFOAndAck(t *testing.T) {
	q, client := newTestRedisQueue(t, time.Minute, 3)
	ctx := context.Background()
	ids := enqueueN(t, q, 5)

	got, err := q.DequeueBatch(ctx, 3)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
	for i, d := range got {
		if d.Item.ID != ids[i] {
			t.Errorf("position %d: got %s, want %s", i, d.Item.ID, ids[i])
		}
	}

	if n := client.ZCard(ctx, leasedKey(q.name)).Val(); n != 3 {
		t.Errorf("expected 3 leases, got %d", n)
	}
	if err := q.Ack(ctx, got); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if n := client.ZCard(ctx, leasedKey(q.name)).Val(); n != 0 {
		t.Errorf("expected no leases after ack, got %d", n)
	}
	if n := client.HLen(ctx, inflightKey(q.name)).Val(); n != 0 {
		t.Errorf("expected no inflight payloads after ack, got %d", n)
	}

	rest, err := q.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rest) != 2 || rest[0].Item.ID != ids[3] {
		t.Errorf("expected remaining 2 items in order, got %d", len(rest))
	}
}

func TestRedisQueue_EmptyDequeue(t *testing.T) {
	q, _ := newTestRedisQueue(t, time.Minute, 3)
	got, err := q.DequeueBatch(context.Background(), 70)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty batch, got %d", len(got))
	}
}

func TestRedisQueue_ExpiredLeaseIsRedeliveredFirst(t *testing.T) {
	q, _ := newTestRedisQueue(t, 50*time.Millisecond, 3)
	ctx := context.Background()
	ids := enqueueN(t, q, 3)

	leased, err := q.DequeueBatch(ctx, 2)
	if err != nil || len(leased) != 2 {
		t.Fatalf("dequeue: %d, %v", len(leased), err)
	}

	time.Sleep(100 * time.Millisecond)
	requeued, dead, err := q.Reclaim(ctx)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if requeued != 2 || dead != 0 {
		t.Errorf("expected 2 requeued and 0 dead, got %d and %d", requeued, dead)
	}

	got, err := q.DequeueBatch(ctx, 3)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
	for i, d := range got {
		if d.Item.ID != ids[i] {
			t.Errorf("position %d: got %s, want %s", i, d.Item.ID, ids[i])
		}
	}

	// A stale ack of the first lease must not remove the new lease.
	if err := q.Ack(ctx, leased); err != nil {
		t.Fatalf("stale ack: %v", err)
	}
}

func TestRedisQueue_DeadLettersAfterMaxDeliveries(t *testing.T) {
	q, _ := newTestRedisQueue(t, 20*time.Millisecond, 2)
	ctx := context.Background()
	enqueueN(t, q, 1)

	for round := 1; round <= 2; round++ {
		got, err := q.DequeueBatch(ctx, 1)
		if err != nil || len(got) != 1 {
			t.Fatalf("round %d: dequeue %d, %v", round, len(got), err)
		}
		time.Sleep(50 * time.Millisecond)
		if _, _, err := q.Reclaim(ctx); err != nil {
			t.Fatalf("round %d: reclaim: %v", round, err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 1 {
		t.Fatalf("expected 1 dead item, got %d", depth)
	}

	moved, err := q.Requeue(ctx, 10)
	if err != nil || moved != 1 {
		t.Fatalf("requeue: %d, %v", moved, err)
	}
	got, err := q.DequeueBatch(ctx, 1)
	if err != nil || len(got) != 1 {
		t.Errorf("expected requeued item to be deliverable, got %d, %v", len(got), err)
	}
}
