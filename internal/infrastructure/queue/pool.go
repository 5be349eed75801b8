package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/billing"
)

// SubmissionProcessor procesa un envío por id. Lo implementa billing.SubmissionService.
type SubmissionProcessor interface {
	Process(ctx context.Context, submissionID string) error
}

// popTimeout tiempo máximo de BRPOP antes de volver a mirar el contexto.
const popTimeout = 5 * time.Second

// WorkerPool consume las colas de envíos y notificaciones.
type WorkerPool struct {
	rdb       *redis.Client
	processor SubmissionProcessor
	workers   int
	log       zerolog.Logger
	wg        sync.WaitGroup
}

func NewWorkerPool(rdb *redis.Client, processor SubmissionProcessor, workers int, log zerolog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		rdb:       rdb,
		processor: processor,
		workers:   workers,
		log:       log.With().Str("component", "worker").Logger(),
	}
}

// Start lanza los workers. Cada uno bloquea en BRPOP hasta que llega trabajo o se cancela ctx.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	p.log.Info().Int("workers", p.workers).Msg("pool de workers iniciado")
}

// Wait espera a que terminen todos los workers tras cancelar el contexto.
func (p *WorkerPool) Wait() { p.wg.Wait() }

func (p *WorkerPool) run(ctx context.Context, id int) {
	queues := []string{QueueSubmissions, QueueNotifications}
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Int("worker", id).Msg("worker detenido")
			return
		default:
		}
		result, err := p.rdb.BRPop(ctx, popTimeout, queues...).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				p.log.Error().Err(err).Int("worker", id).Msg("error leyendo la cola")
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}
		p.Handle(ctx, result[0], []byte(result[1]))
	}
}

// Handle procesa un trabajo ya extraído de la cola.
func (p *WorkerPool) Handle(ctx context.Context, queue string, raw []byte) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		p.log.Error().Err(err).Str("queue", queue).Msg("trabajo ilegible")
		return
	}
	switch job.Type {
	case JobSubmission:
		var payload SubmissionPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.SubmissionID == "" {
			p.log.Error().Err(err).Str("queue", queue).Msg("envío sin id")
			return
		}
		err := p.processor.Process(ctx, payload.SubmissionID)
		switch {
		case errors.Is(err, billing.ErrSubmissionExhausted):
			// ya está en la cola de revisión
		case err != nil:
			p.log.Error().Err(err).Str("submission_id", payload.SubmissionID).Msg("error procesando el envío")
		}
	case JobNotification:
		var n NotificationPayload
		if err := json.Unmarshal(job.Payload, &n); err != nil {
			p.log.Error().Err(err).Msg("notificación ilegible")
			return
		}
		p.log.Info().
			Str("event", n.Event).
			Str("issuer_id", n.IssuerID).
			Str("invoice_id", n.InvoiceID).
			Str("attestation_id", n.AttestationID).
			Str("detail", n.Detail).
			Msg("notificación")
	default:
		p.log.Warn().Str("type", job.Type).Str("queue", queue).Msg("tipo de trabajo desconocido")
	}
}
