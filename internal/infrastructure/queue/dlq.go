package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

// DLQPrefix una lista de revisión manual por cola de origen: dlq:<cola>.
const DLQPrefix = "dlq:"

// DLQEntry envío agotado con el contexto necesario para revisarlo.
type DLQEntry struct {
	OriginalQueue string          `json:"original_queue"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	FailedAt      string          `json:"failed_at"` // RFC 3339
	Attempts      int             `json:"attempts"`
	InvoiceID     string          `json:"invoice_id"`
	AttestationID string          `json:"attestation_id"`
}

// DeadLetterQueue implementa billing.DeadLetterSink sobre Redis.
type DeadLetterQueue struct {
	rdb *redis.Client
	log zerolog.Logger
	now func() time.Time
}

var _ billing.DeadLetterSink = (*DeadLetterQueue)(nil)

func NewDeadLetterQueue(rdb *redis.Client, log zerolog.Logger) *DeadLetterQueue {
	return &DeadLetterQueue{rdb: rdb, log: log.With().Str("component", "dlq").Logger(), now: time.Now}
}

// DeadLetter mueve el envío a dlq:jobs:envios.
func (q *DeadLetterQueue) DeadLetter(ctx context.Context, sub *entity.Submission, reason string) error {
	payload, err := json.Marshal(SubmissionPayload{SubmissionID: sub.ID})
	if err != nil {
		return err
	}
	entry := DLQEntry{
		OriginalQueue: QueueSubmissions,
		JobType:       JobSubmission,
		Payload:       payload,
		Reason:        reason,
		FailedAt:      q.now().UTC().Format(time.RFC3339),
		Attempts:      sub.Attempts,
		InvoiceID:     sub.InvoiceID,
		AttestationID: sub.AttestationID,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := DLQPrefix + QueueSubmissions
	if err := q.rdb.LPush(ctx, key, data).Err(); err != nil {
		q.log.Error().Err(err).Str("dlq_key", key).Msg("no se pudo mover el envío a revisión")
		return err
	}
	q.log.Warn().
		Str("submission_id", sub.ID).
		Str("attestation_id", sub.AttestationID).
		Str("reason", reason).
		Int("attempts", sub.Attempts).
		Msg("envío movido a la cola de revisión")
	return nil
}

// Length número de entradas pendientes de revisión.
func (q *DeadLetterQueue) Length(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, DLQPrefix+QueueSubmissions).Result()
}

// Entries devuelve hasta n entradas, la más reciente primero.
func (q *DeadLetterQueue) Entries(ctx context.Context, n int64) ([]DLQEntry, error) {
	raw, err := q.rdb.LRange(ctx, DLQPrefix+QueueSubmissions, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DLQEntry, 0, len(raw))
	for _, r := range raw {
		var e DLQEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			q.log.Error().Err(err).Msg("entrada de revisión ilegible")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
