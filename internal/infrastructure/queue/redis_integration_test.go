//go:build integration

package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/infrastructure/queue"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	c, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	url, err := c.ConnectionString(ctx)
	require.NoError(t, err)
	rdb, err := queue.NewRedisClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedis_DispatcherYWorkers(t *testing.T) {
	rdb := startRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := queue.NewDispatcher(rdb)
	require.NoError(t, d.Enqueue(ctx, "sub-1"))
	require.NoError(t, d.Notify(ctx, billing.Notification{Event: billing.EventInvoiceIssued, InvoiceID: "inv-1"}))
	require.NoError(t, d.Enqueue(ctx, "sub-2"))

	proc := &fakeProcessor{}
	pool := queue.NewWorkerPool(rdb, proc, 2, zerolog.Nop())
	pool.Start(ctx)

	require.Eventually(t, func() bool { return len(proc.processed()) == 2 }, 10*time.Second, 50*time.Millisecond)
	assert.ElementsMatch(t, []string{"sub-1", "sub-2"}, proc.processed())

	n, err := rdb.LLen(ctx, queue.QueueNotifications).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	cancel()
	pool.Wait()
}

func TestRedis_ColaDeRevision(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	dlq := queue.NewDeadLetterQueue(rdb, zerolog.Nop())

	sub := &entity.Submission{ID: "sub-9", InvoiceID: "inv-9", AttestationID: "TBAI-X", Attempts: 5}
	require.NoError(t, dlq.DeadLetter(ctx, sub, "intentos agotados: COM001"))

	n, err := dlq.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := dlq.Entries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, queue.QueueSubmissions, entries[0].OriginalQueue)
	assert.Equal(t, 5, entries[0].Attempts)
	assert.Equal(t, "TBAI-X", entries[0].AttestationID)

	var payload queue.SubmissionPayload
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.Equal(t, "sub-9", payload.SubmissionID)
}
