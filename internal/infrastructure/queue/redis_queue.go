package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/facturae-api/internal/application/billing"
)

// Listas de Redis. Se encola con LPUSH y los workers consumen con BRPOP.
const (
	QueueSubmissions   = "jobs:envios"
	QueueNotifications = "jobs:notificaciones"
)

// Tipos de trabajo.
const (
	JobSubmission   = "envio"
	JobNotification = "notificacion"
)

// Job sobre común de todos los trabajos.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SubmissionPayload referencia al envío; el estado vive en la base de datos.
type SubmissionPayload struct {
	SubmissionID string `json:"submission_id"`
}

// NotificationPayload evento de emisión o envío.
type NotificationPayload struct {
	Event         string `json:"event"`
	IssuerID      string `json:"issuer_id"`
	InvoiceID     string `json:"invoice_id"`
	AttestationID string `json:"attestation_id,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// NewRedisClient abre el cliente a partir de una URL redis://.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redis: URL no válida: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// Dispatcher encola envíos y notificaciones. Implementa billing.SubmissionQueue y billing.Notifier.
type Dispatcher struct {
	rdb *redis.Client
}

var (
	_ billing.SubmissionQueue = (*Dispatcher)(nil)
	_ billing.Notifier        = (*Dispatcher)(nil)
)

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// Enqueue encola el envío para los workers.
func (d *Dispatcher) Enqueue(ctx context.Context, submissionID string) error {
	return d.enqueue(ctx, QueueSubmissions, JobSubmission, SubmissionPayload{SubmissionID: submissionID})
}

// Notify encola la notificación; la entrega queda fuera de este servicio.
func (d *Dispatcher) Notify(ctx context.Context, n billing.Notification) error {
	return d.enqueue(ctx, QueueNotifications, JobNotification, NotificationPayload{
		Event:         n.Event,
		IssuerID:      n.IssuerID,
		InvoiceID:     n.InvoiceID,
		AttestationID: n.AttestationID,
		Detail:        n.Detail,
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}
