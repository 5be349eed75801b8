package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGateway devuelve las respuestas en orden; la última se repite.
type scriptedGateway struct {
	mu       sync.Mutex
	steps    []func(billing.GatewayRequest) (*billing.GatewayResult, error)
	calls    []billing.GatewayRequest
	statuses int
	cancels  int
}

func (g *scriptedGateway) next(req billing.GatewayRequest) (*billing.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	step := g.steps[len(g.steps)-1]
	if len(g.calls) <= len(g.steps) {
		step = g.steps[len(g.calls)-1]
	}
	return step(req)
}

func (g *scriptedGateway) Submit(_ context.Context, req billing.GatewayRequest) (*billing.GatewayResult, error) {
	return g.next(req)
}

func (g *scriptedGateway) Cancel(_ context.Context, req billing.GatewayRequest) (*billing.GatewayResult, error) {
	g.mu.Lock()
	g.cancels++
	g.mu.Unlock()
	return g.next(req)
}

func (g *scriptedGateway) CheckStatus(_ context.Context, _ string) (*billing.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses++
	return &billing.GatewayResult{Status: "unknown"}, nil
}

func accept(req billing.GatewayRequest) (*billing.GatewayResult, error) {
	return &billing.GatewayResult{Accepted: true, ReferenceID: "REF-" + req.AttestationID, Status: "accepted"}, nil
}

func failWith(err error) func(billing.GatewayRequest) (*billing.GatewayResult, error) {
	return func(billing.GatewayRequest) (*billing.GatewayResult, error) { return nil, err }
}

type recordingDLQ struct {
	mu      sync.Mutex
	entries []string
}

func (d *recordingDLQ) DeadLetter(_ context.Context, sub *entity.Submission, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, sub.ID)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newSubmissionService(f *fixture, gw billing.Gateway, dlq billing.DeadLetterSink, maxAttempts int) (*billing.SubmissionService, *clock) {
	svc := billing.NewSubmissionService(f.store, f.store.Repos(), gw, f.notifier, dlq,
		billing.SubmissionConfig{MaxAttempts: maxAttempts}, zerolog.Nop())
	c := &clock{t: time.Now().UTC()}
	svc.SetClock(c.now)
	return svc, c
}

func TestSubmission_AceptadoActualizaElEspejo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issue(t, "0001")
	subID := f.queue.enqueued()[0]

	gw := &scriptedGateway{steps: []func(billing.GatewayRequest) (*billing.GatewayResult, error){accept}}
	svc, _ := newSubmissionService(f, gw, nil, 3)

	require.NoError(t, svc.Process(ctx, subID))

	sub, err := f.store.Repos().Submissions.GetByID(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusAccepted, sub.Status)
	assert.Equal(t, "REF-"+inv.AttestationID, sub.ReferenceID)
	assert.Equal(t, 1, sub.Attempts)
	assert.Equal(t, entity.SubmissionStatusAccepted, f.invoice(t, inv.ID).SubmissionStatus)
	assert.Contains(t, f.notifier.names(), billing.EventSubmissionAccepted)

	require.Len(t, gw.calls, 1)
	assert.Equal(t, inv.AttestationID, gw.calls[0].AttestationID)
	assert.Equal(t, "B12345674", gw.calls[0].IssuerTaxID)
	assert.Contains(t, string(gw.calls[0].Document), "ds:Signature")

	// un segundo mensaje del mismo envío no vuelve a llamar al servicio
	require.NoError(t, svc.Process(ctx, subID))
	assert.Len(t, gw.calls, 1)
}

func TestSubmission_FalloTransitorioReprogramaConEspera(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issue(t, "0001")
	subID := f.queue.enqueued()[0]

	gw := &scriptedGateway{steps: []func(billing.GatewayRequest) (*billing.GatewayResult, error){
		failWith(domain.NewRateLimitError("RATE001", "demasiadas peticiones")),
		accept,
	}}
	svc, c := newSubmissionService(f, gw, nil, 5)

	require.NoError(t, svc.Process(ctx, subID))
	sub, err := f.store.Repos().Submissions.GetByID(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusPending, sub.Status)
	assert.Equal(t, 1, sub.Attempts)
	assert.Equal(t, "RATE001", sub.LastErrorCode)
	require.NotNil(t, sub.NextAttemptAt)
	assert.Equal(t, c.now().Add(60*time.Second), *sub.NextAttemptAt)

	// la factura sigue emitida aunque el envío falle
	assert.Equal(t, entity.InvoiceStatusIssued, f.invoice(t, inv.ID).Status)

	n, err := svc.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "todavía no ha vencido")

	c.advance(61 * time.Second)
	n, err = svc.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sub, err = f.store.Repos().Submissions.GetByID(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusAccepted, sub.Status)
	assert.Equal(t, 1, gw.statuses, "antes de reenviar se consulta el estado")
}

func TestSubmission_AgotaIntentosYVaALaColaDeRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issue(t, "0001")
	subID := f.queue.enqueued()[0]

	gw := &scriptedGateway{steps: []func(billing.GatewayRequest) (*billing.GatewayResult, error){
		failWith(domain.NewCommunicationError("COM001", "conexión rechazada", errors.New("dial tcp"))),
	}}
	dlq := &recordingDLQ{}
	svc, c := newSubmissionService(f, gw, dlq, 3)

	var err error
	for i := 0; i < 3; i++ {
		err = svc.Process(ctx, subID)
		c.advance(time.Hour)
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrSubmissionExhausted)

	sub, gerr := f.store.Repos().Submissions.GetByID(ctx, subID)
	require.NoError(t, gerr)
	assert.Equal(t, entity.SubmissionStatusFailed, sub.Status)
	assert.Equal(t, 3, sub.Attempts)
	assert.Equal(t, []string{subID}, dlq.entries)
	assert.Equal(t, entity.SubmissionStatusFailed, f.invoice(t, inv.ID).SubmissionStatus)
	assert.Equal(t, entity.InvoiceStatusIssued, f.invoice(t, inv.ID).Status)
	assert.Contains(t, f.notifier.names(), billing.EventSubmissionFailed)
}

func TestSubmission_SinRegistroVaALaColaDeRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issue(t, "0001")
	subID := f.queue.enqueued()[0]
	require.True(t, f.store.Tamper(f.issuerID, 1, func(rec *entity.AttestationRecord) {
		rec.InvoiceID = "factura-inexistente"
	}))

	gw := &scriptedGateway{steps: []func(billing.GatewayRequest) (*billing.GatewayResult, error){accept}}
	dlq := &recordingDLQ{}
	svc, c := newSubmissionService(f, gw, dlq, 5)

	err := svc.Process(ctx, subID)
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrSubmissionExhausted)
	assert.Empty(t, gw.calls)

	sub, err := f.store.Repos().Submissions.GetByID(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusFailed, sub.Status)
	assert.Equal(t, "CHAIN003", sub.LastErrorCode)
	assert.Nil(t, sub.NextAttemptAt, "sin lease pendiente")
	assert.Equal(t, []string{subID}, dlq.entries)
	assert.Equal(t, entity.SubmissionStatusFailed, f.invoice(t, inv.ID).SubmissionStatus)
	assert.Contains(t, f.notifier.names(), billing.EventSubmissionFailed)

	// el cron ya no lo recoge
	c.advance(time.Hour)
	n, err := svc.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{subID}, dlq.entries)
}

func TestSubmission_RechazoDefinitivo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.issue(t, "0001")
	subID := f.queue.enqueued()[0]

	gw := &scriptedGateway{steps: []func(billing.GatewayRequest) (*billing.GatewayResult, error){
		func(billing.GatewayRequest) (*billing.GatewayResult, error) {
			return &billing.GatewayResult{Accepted: false, Code: "TBAI001", Message: "encadenamiento incorrecto"}, nil
		},
	}}
	svc, _ := newSubmissionService(f, gw, nil, 5)

	require.NoError(t, svc.Process(ctx, subID))
	sub, err := f.store.Repos().Submissions.GetByID(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusRejected, sub.Status)
	assert.Equal(t, "TBAI001", sub.LastErrorCode)
	assert.Nil(t, sub.NextAttemptAt)
}

func TestSubmission_AnulacionUsaCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issue(t, "0001")
	res, err := f.orch.Cancel(ctx, f.issuerID, inv.ID)
	require.NoError(t, err)

	gw := &scriptedGateway{steps: []func(billing.GatewayRequest) (*billing.GatewayResult, error){accept}}
	svc, _ := newSubmissionService(f, gw, nil, 5)

	require.NoError(t, svc.Process(ctx, res.Submission.ID))
	assert.Equal(t, 1, gw.cancels)
	require.Len(t, gw.calls, 1)
	assert.Contains(t, string(gw.calls[0].Document), "AnulacionFactura")
	assert.Equal(t, entity.SubmissionStatusAccepted, f.invoice(t, inv.ID).SubmissionStatus)
}

func TestSubmission_Backoff(t *testing.T) {
	f := newFixture(t)
	svc, _ := newSubmissionService(f, &scriptedGateway{}, nil, 5)

	com := domain.NewCommunicationError("COM001", "x", nil)
	assert.Equal(t, 5*time.Second, svc.Backoff(com, 1))
	assert.Equal(t, 10*time.Second, svc.Backoff(com, 2))
	assert.Equal(t, 40*time.Second, svc.Backoff(com, 4))

	mant := domain.NewMaintenanceError("MANT001", "x")
	assert.Equal(t, 300*time.Second, svc.Backoff(mant, 1))
	assert.Equal(t, time.Hour, svc.Backoff(mant, 10))
}
