package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DueProcessor reintenta los envíos vencidos. Lo implementa billing.SubmissionService.
type DueProcessor interface {
	ProcessDue(ctx context.Context) (int, error)
}

// DefaultRetryInterval cada cuánto se buscan envíos vencidos.
const DefaultRetryInterval = 30 * time.Second

// RetryCron recoge los envíos pendientes cuyo siguiente intento ya venció. Cubre los
// mensajes perdidos de la cola y funciona también sin Redis.
type RetryCron struct {
	processor DueProcessor
	interval  time.Duration
	paused    func() bool
	log       zerolog.Logger
}

// NewRetryCron paused puede ser nil; si devuelve true (circuito abierto) el tick se salta.
func NewRetryCron(processor DueProcessor, interval time.Duration, paused func() bool, log zerolog.Logger) *RetryCron {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	if paused == nil {
		paused = func() bool { return false }
	}
	return &RetryCron{
		processor: processor,
		interval:  interval,
		paused:    paused,
		log:       log.With().Str("component", "retry_cron").Logger(),
	}
}

// Start lanza la goroutine; termina al cancelar ctx.
func (c *RetryCron) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		c.log.Info().Dur("interval", c.interval).Msg("cron de reintentos iniciado")
		for {
			select {
			case <-ctx.Done():
				c.log.Info().Msg("cron de reintentos detenido")
				return
			case <-ticker.C:
				c.Tick(ctx)
			}
		}
	}()
}

// Tick ejecuta una pasada. Devuelve cuántos envíos procesó.
func (c *RetryCron) Tick(ctx context.Context) int {
	if c.paused() {
		c.log.Debug().Msg("circuito abierto; se salta el tick")
		return 0
	}
	n, err := c.processor.ProcessDue(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("error procesando envíos vencidos")
	}
	if n > 0 {
		c.log.Info().Int("count", n).Msg("envíos vencidos procesados")
	}
	return n
}
