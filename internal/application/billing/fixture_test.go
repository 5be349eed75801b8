package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/fiscal"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae/signer"
	"github.com/jhoicas/facturae-api/internal/infrastructure/memory"
	"github.com/jhoicas/facturae-api/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const verificationBase = "https://batuz.eus/QRTBAI/verificar"

type fixture struct {
	store    *memory.Store
	orch     *billing.AttestationOrchestrator
	invoices *billing.InvoiceUseCase
	parties  *billing.PartyUseCase
	verifier *billing.ChainVerifier
	signer   *signer.StoreSigner
	queue    *recordingQueue
	notifier *recordingNotifier
	pdf      *recordingPDF
	issuerID string
	clientID string
}

type fixtureOptions struct {
	unsigned         bool
	requireSignature bool
	orchOpts         []billing.OrchestratorOption
	baseURL          string
}

func newFixture(t *testing.T, opts ...func(*fixtureOptions)) *fixture {
	t.Helper()
	var o fixtureOptions
	for _, opt := range opts {
		opt(&o)
	}
	ctx := context.Background()
	log := zerolog.Nop()
	store := memory.NewStore()
	repos := store.Repos()

	var certStore *signer.CertificateStore
	if o.unsigned {
		certStore = signer.NewUnsignedStore()
	} else {
		cert, key := testutil.ValidRSACertificate(t)
		h, err := signer.NewHandle(cert, key)
		require.NoError(t, err)
		certStore, err = signer.NewCertificateStore(h)
		require.NoError(t, err)
	}
	st := signer.NewStoreSigner(certStore, signer.NewDigitalSignatureService(time.Now), log)

	builder := facturae.NewXMLBuilderService(facturae.SoftwareInfo{
		Name: "facturae-api", Version: "1.0.0", License: "TBAIBI00000000PRUEBA",
	}, "1.2")
	queue := &recordingQueue{}
	notifier := &recordingNotifier{}
	printer := &recordingPDF{}
	baseURL := verificationBase
	if o.baseURL != "" {
		baseURL = o.baseURL
	}
	orchOpts := append([]billing.OrchestratorOption{
		billing.WithQueue(queue),
		billing.WithNotifier(notifier),
		billing.WithPDFGenerator(printer),
	}, o.orchOpts...)
	orch := billing.NewAttestationOrchestrator(
		store, repos,
		fiscal.NewValidator(fiscal.ValidatorConfig{}),
		builder, st, facturae.NewQRCodeEncoder(),
		billing.OrchestratorConfig{VerificationBaseURL: baseURL, RequireSignature: o.requireSignature},
		log,
		orchOpts...,
	)

	parties := billing.NewPartyUseCase(repos.Issuers, repos.Clients)
	issuer, err := parties.RegisterIssuer(ctx, dto.RegisterIssuerRequest{Name: "Emisor de Pruebas SL", TaxID: "B12345674"})
	require.NoError(t, err)
	client, err := parties.CreateClient(ctx, issuer.ID, dto.CreateClientRequest{Name: "Cliente SA", TaxID: "12345678Z"})
	require.NoError(t, err)

	return &fixture{
		store:    store,
		orch:     orch,
		invoices: billing.NewInvoiceUseCase(store, repos, log),
		parties:  parties,
		verifier: billing.NewChainVerifier(repos, fiscal.SHA256Hasher{}, log),
		signer:   st,
		queue:    queue,
		notifier: notifier,
		pdf:      printer,
		issuerID: issuer.ID,
		clientID: client.ID,
	}
}

func unsigned(o *fixtureOptions) { o.unsigned = true }

func requireSignature(o *fixtureOptions) { o.requireSignature = true }

func withOrchestratorOptions(opts ...billing.OrchestratorOption) func(*fixtureOptions) {
	return func(o *fixtureOptions) { o.orchOpts = append(o.orchOpts, opts...) }
}

func withVerificationBase(url string) func(*fixtureOptions) {
	return func(o *fixtureOptions) { o.baseURL = url }
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ordinaryRequest(clientID, number string) dto.InvoiceRequest {
	base := dec("1000.00")
	return dto.InvoiceRequest{
		ClientID:    clientID,
		Series:      "FACT",
		Number:      number,
		Type:        entity.InvoiceTypeOrdinary,
		Concept:     "Servicios de consultoría",
		TaxableBase: &base,
		TaxRate:     dec("21"),
	}
}

// draft crea un borrador ordinario y devuelve su id.
func (f *fixture) draft(t *testing.T, number string) string {
	t.Helper()
	inv, err := f.invoices.CreateDraft(context.Background(), f.issuerID, ordinaryRequest(f.clientID, number))
	require.NoError(t, err)
	return inv.ID
}

// issue crea y emite una factura ordinaria.
func (f *fixture) issue(t *testing.T, number string) *dto.InvoiceResponse {
	t.Helper()
	res, err := f.orch.Issue(context.Background(), f.issuerID, f.draft(t, number))
	require.NoError(t, err)
	return &res.Invoice
}

func (f *fixture) invoice(t *testing.T, id string) *entity.Invoice {
	t.Helper()
	inv, err := f.store.Repos().Invoices.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *recordingQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []billing.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, ev billing.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Event)
	}
	return out
}

type recordingPDF struct {
	mu     sync.Mutex
	prints []billing.InvoicePrint
}

func (r *recordingPDF) GenerateInvoicePDF(_ context.Context, p billing.InvoicePrint) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prints = append(r.prints, p)
	return []byte("%PDF-1.3"), nil
}

// hookHasher ejecuta onFingerprint dentro de la emisión, con el lock de la cadena tomado.
type hookHasher struct {
	fiscal.SHA256Hasher
	onFingerprint func()
}

func (h *hookHasher) Fingerprint(in fiscal.FingerprintInput, previous string) string {
	if fn := h.onFingerprint; fn != nil {
		h.onFingerprint = nil
		fn()
	}
	return h.SHA256Hasher.Fingerprint(in, previous)
}

// concurrently lanza fn en otra goroutine y le da tiempo a quedar esperando el lock.
// El resultado se lee tras wait.
func concurrently(fn func()) (wait func()) {
	var wg sync.WaitGroup
	started := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		fn()
	}()
	<-started
	time.Sleep(20 * time.Millisecond)
	return wg.Wait
}
