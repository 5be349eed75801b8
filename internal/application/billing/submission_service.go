package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
	"github.com/rs/zerolog"
)

// ErrSubmissionExhausted el envío no se reintentará más y pasó a la cola de revisión
// manual: agotó sus intentos o no se pudo construir la petición.
var ErrSubmissionExhausted = errors.New("envío agotado: pasa a revisión manual")

// Valores por defecto del envío.
const (
	DefaultMaxAttempts = 5
	DefaultMaxBackoff  = time.Hour
	DefaultBatchSize   = 10
	// claimLease reserva el envío mientras se habla con el servicio externo para que el
	// cron no lo recoja a la vez que un worker.
	claimLease = 2 * time.Minute
)

// SubmissionConfig política de reintentos.
type SubmissionConfig struct {
	MaxAttempts int
	MaxBackoff  time.Duration
	BatchSize   int
}

// SubmissionService entrega registros ya emitidos al servicio externo. El resultado solo
// cambia el estado del envío y su espejo en la factura; la emisión local nunca se revierte.
type SubmissionService struct {
	tx       TxRunner
	repos    repository.Repos
	gateway  Gateway
	notifier Notifier
	dlq      DeadLetterSink
	cfg      SubmissionConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewSubmissionService construye el servicio. notifier y dlq pueden ser nil.
func NewSubmissionService(tx TxRunner, repos repository.Repos, gateway Gateway, notifier Notifier, dlq DeadLetterSink, cfg SubmissionConfig, log zerolog.Logger) *SubmissionService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &SubmissionService{
		tx:       tx,
		repos:    repos,
		gateway:  gateway,
		notifier: notifier,
		dlq:      dlq,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// SetClock reloj para tests.
func (s *SubmissionService) SetClock(now func() time.Time) { s.now = now }

// Backoff espera antes del siguiente intento: la base del tipo de error duplicada en cada
// intento fallido, con tope.
func (s *SubmissionService) Backoff(err error, attempts int) time.Duration {
	d := domain.RetryDelay(err)
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	if d > s.cfg.MaxBackoff {
		return s.cfg.MaxBackoff
	}
	return d
}

// Process intenta un envío. Los envíos ya finalizados, desconocidos o todavía no vencidos
// se ignoran sin error, así que un mensaje duplicado en la cola es inocuo.
func (s *SubmissionService) Process(ctx context.Context, submissionID string) error {
	sub, ok, err := s.claim(ctx, submissionID)
	if err != nil || !ok {
		return err
	}
	log := s.log.With().
		Str("submission_id", sub.ID).
		Str("attestation_id", sub.AttestationID).
		Str("operation", sub.Operation).
		Int("attempt", sub.Attempts+1).
		Logger()

	req, err := s.request(ctx, sub)
	if err != nil {
		if !undeliverable(err) {
			// fallo transitorio (p. ej. la base de datos): el lease caduca y se reintenta
			return err
		}
		return s.abandon(ctx, log, sub, err)
	}

	res, callErr := s.call(ctx, sub, req)
	now := s.now().UTC()
	sub.UpdatedAt = now

	var event string
	switch {
	case callErr == nil && res.Accepted:
		sub.Status = entity.SubmissionStatusAccepted
		sub.ReferenceID = res.ReferenceID
		sub.NextAttemptAt = nil
		sub.LastError, sub.LastErrorCode = "", ""
		sub.Attempts++
		event = EventSubmissionAccepted
		log.Info().Str("reference_id", res.ReferenceID).Msg("envío aceptado")

	case callErr == nil:
		sub.Status = entity.SubmissionStatusRejected
		sub.NextAttemptAt = nil
		sub.LastErrorCode = res.Code
		sub.LastError = res.Message
		sub.Attempts++
		event = EventSubmissionRejected
		log.Warn().Str("code", res.Code).Str("message", res.Message).Msg("envío rechazado por el servicio externo")

	case domain.IsRetryable(callErr):
		sub.Attempts++
		sub.LastError = callErr.Error()
		sub.LastErrorCode = domain.CodeOf(callErr)
		if sub.Attempts >= s.cfg.MaxAttempts {
			sub.Status = entity.SubmissionStatusFailed
			sub.NextAttemptAt = nil
			event = EventSubmissionFailed
			log.Error().Err(callErr).Msg("envío agotado tras el máximo de intentos")
		} else {
			next := now.Add(s.Backoff(callErr, sub.Attempts))
			sub.NextAttemptAt = &next
			log.Warn().Err(callErr).Time("next_attempt_at", next).Msg("envío fallido; reintento programado")
		}

	default:
		sub.Status = entity.SubmissionStatusRejected
		sub.NextAttemptAt = nil
		sub.Attempts++
		sub.LastError = callErr.Error()
		sub.LastErrorCode = domain.CodeOf(callErr)
		event = EventSubmissionRejected
		log.Error().Err(callErr).Msg("envío rechazado sin reintento")
	}

	if err := s.save(ctx, sub); err != nil {
		return err
	}
	if event != "" {
		s.notify(ctx, sub, event)
	}
	if sub.Status == entity.SubmissionStatusFailed {
		s.deadLetter(ctx, log, sub, fmt.Sprintf("máximo de intentos (%d) superado: %s", s.cfg.MaxAttempts, sub.LastError))
		return fmt.Errorf("%w: %s", ErrSubmissionExhausted, sub.ID)
	}
	return nil
}

// undeliverable errores al preparar la petición que no se arreglan reintentando: falta el
// registro o el emisor, o la cadena está dañada.
func undeliverable(err error) bool {
	if errors.Is(err, domain.ErrNotFound) {
		return true
	}
	var de *domain.Error
	return errors.As(err, &de) && !domain.IsRetryable(err)
}

// abandon marca como fallido un envío cuya petición no se puede construir, libera el
// lease y lo manda a revisión manual sin llamar al servicio externo.
func (s *SubmissionService) abandon(ctx context.Context, log zerolog.Logger, sub *entity.Submission, cause error) error {
	sub.Status = entity.SubmissionStatusFailed
	sub.NextAttemptAt = nil
	sub.LastError = cause.Error()
	sub.LastErrorCode = domain.CodeOf(cause)
	sub.UpdatedAt = s.now().UTC()
	log.Error().Err(cause).Msg("no se pudo preparar el envío; pasa a revisión manual")
	if err := s.save(ctx, sub); err != nil {
		return err
	}
	s.notify(ctx, sub, EventSubmissionFailed)
	s.deadLetter(ctx, log, sub, "petición no construible: "+sub.LastError)
	return fmt.Errorf("%w: %s", ErrSubmissionExhausted, sub.ID)
}

func (s *SubmissionService) deadLetter(ctx context.Context, log zerolog.Logger, sub *entity.Submission, reason string) {
	if s.dlq == nil {
		return
	}
	if err := s.dlq.DeadLetter(ctx, sub, reason); err != nil {
		log.Error().Err(err).Msg("no se pudo mover el envío a la cola de revisión")
	}
}

// ProcessDue procesa un lote de envíos pendientes vencidos. Devuelve cuántos se intentaron.
func (s *SubmissionService) ProcessDue(ctx context.Context) (int, error) {
	due, err := s.repos.Submissions.ListDue(ctx, s.now().UTC(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sub := range due {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		n++
		if err := s.Process(ctx, sub.ID); err != nil && !errors.Is(err, ErrSubmissionExhausted) {
			s.log.Error().Err(err).Str("submission_id", sub.ID).Msg("error procesando envío pendiente")
		}
	}
	return n, nil
}

// ListByInvoice envíos de una factura del emisor.
func (s *SubmissionService) ListByInvoice(ctx context.Context, issuerID, invoiceID string) ([]*dto.SubmissionResponse, error) {
	if _, err := loadInvoice(ctx, s.repos, issuerID, invoiceID); err != nil {
		return nil, err
	}
	list, err := s.repos.Submissions.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.SubmissionResponse, 0, len(list))
	for _, sub := range list {
		out = append(out, toSubmissionResponse(sub))
	}
	return out, nil
}

// claim reserva el envío si sigue pendiente y vencido.
func (s *SubmissionService) claim(ctx context.Context, id string) (*entity.Submission, bool, error) {
	var sub *entity.Submission
	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		cur, err := repos.Submissions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if cur == nil || cur.IsFinal() || (cur.NextAttemptAt != nil && cur.NextAttemptAt.After(now)) {
			return nil
		}
		lease := now.Add(claimLease)
		claimed := *cur
		claimed.NextAttemptAt = &lease
		claimed.UpdatedAt = now
		if err := repos.Submissions.Update(ctx, &claimed); err != nil {
			return err
		}
		sub = cur
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return sub, sub != nil, nil
}

func (s *SubmissionService) request(ctx context.Context, sub *entity.Submission) (GatewayRequest, error) {
	kind := entity.RecordKindIssue
	if sub.Operation == entity.SubmissionOpCancel {
		kind = entity.RecordKindCancel
	}
	rec, err := s.repos.Records.GetByInvoice(ctx, sub.InvoiceID, kind)
	if err != nil {
		return GatewayRequest{}, err
	}
	if rec == nil {
		return GatewayRequest{}, domain.NewChainIntegrityError("CHAIN003",
			fmt.Sprintf("el envío %s no tiene registro %s", sub.ID, kind))
	}
	issuer, err := loadIssuer(ctx, s.repos, sub.IssuerID)
	if err != nil {
		return GatewayRequest{}, err
	}
	return GatewayRequest{
		AttestationID: sub.AttestationID,
		IssuerTaxID:   issuer.TaxID,
		Document:      []byte(rec.SignedXML),
	}, nil
}

// call reintentos de un envío: primero se consulta si el servicio ya lo tiene, para no
// depender solo de la idempotencia del otro lado.
func (s *SubmissionService) call(ctx context.Context, sub *entity.Submission, req GatewayRequest) (*GatewayResult, error) {
	if sub.Attempts > 0 && sub.Operation == entity.SubmissionOpSubmit {
		if st, err := s.gateway.CheckStatus(ctx, sub.AttestationID); err == nil && st != nil && st.Accepted {
			return st, nil
		}
	}
	if sub.Operation == entity.SubmissionOpCancel {
		return s.gateway.Cancel(ctx, req)
	}
	return s.gateway.Submit(ctx, req)
}

func (s *SubmissionService) save(ctx context.Context, sub *entity.Submission) error {
	return s.tx.Run(ctx, func(repos repository.Repos) error {
		if err := repos.Submissions.Update(ctx, sub); err != nil {
			return err
		}
		// El espejo de la factura refleja solo el envío más reciente.
		subs, err := repos.Submissions.ListByInvoice(ctx, sub.InvoiceID)
		if err != nil {
			return err
		}
		if len(subs) > 0 && subs[len(subs)-1].ID != sub.ID {
			return nil
		}
		return repos.Invoices.UpdateSubmissionStatus(ctx, sub.InvoiceID, sub.Status)
	})
}

func (s *SubmissionService) notify(ctx context.Context, sub *entity.Submission, event string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, Notification{
		Event:         event,
		IssuerID:      sub.IssuerID,
		InvoiceID:     sub.InvoiceID,
		AttestationID: sub.AttestationID,
		Detail:        sub.LastErrorCode,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("notificación no entregada")
	}
}
