//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/fiscal"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae/signer"
	"github.com/jhoicas/facturae-api/internal/infrastructure/postgres"
	"github.com/jhoicas/facturae-api/internal/testutil"
	"github.com/jhoicas/facturae-api/pkg/config"
)

type env struct {
	pool     *pgxpool.Pool
	orch     *billing.AttestationOrchestrator
	invoices *billing.InvoiceUseCase
	verifier *billing.ChainVerifier
	parties  *billing.PartyUseCase
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcPostgres.WithDatabase("facturae_test"),
		tcPostgres.WithUsername("facturae"),
		tcPostgres.WithPassword("facturae"),
		testcontainers.WithWaitStrategy(tcPostgres.BasicWaitStrategies()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := zerolog.Nop()
	pool, err := postgres.NewPool(ctx, config.DBConfig{DatabaseURL: dsn}, log)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))

	cert, key := testutil.ValidRSACertificate(t)
	h, err := signer.NewHandle(cert, key)
	require.NoError(t, err)
	store, err := signer.NewCertificateStore(h)
	require.NoError(t, err)

	tx := postgres.NewTxRunner(pool)
	repos := postgres.NewRepos(pool)
	orch := billing.NewAttestationOrchestrator(
		tx, repos,
		fiscal.NewValidator(fiscal.ValidatorConfig{}),
		facturae.NewXMLBuilderService(facturae.SoftwareInfo{Name: "facturae-api", Version: "1.0.0", License: "TBAIBI00000000PRUEBA"}, "1.2"),
		signer.NewStoreSigner(store, signer.NewDigitalSignatureService(time.Now), log),
		facturae.NewQRCodeEncoder(),
		billing.OrchestratorConfig{VerificationBaseURL: "https://batuz.eus/QRTBAI/verificar"},
		log,
	)
	return &env{
		pool:     pool,
		orch:     orch,
		invoices: billing.NewInvoiceUseCase(tx, repos, log),
		verifier: billing.NewChainVerifier(repos, fiscal.SHA256Hasher{}, log),
		parties:  billing.NewPartyUseCase(repos.Issuers, repos.Clients),
	}
}

func (e *env) party(t *testing.T, taxID string) (issuerID, clientID string) {
	t.Helper()
	ctx := context.Background()
	issuer, err := e.parties.RegisterIssuer(ctx, dto.RegisterIssuerRequest{Name: "Emisor " + taxID, TaxID: taxID})
	require.NoError(t, err)
	client, err := e.parties.CreateClient(ctx, issuer.ID, dto.CreateClientRequest{Name: "Cliente SA", TaxID: "12345678Z"})
	require.NoError(t, err)
	return issuer.ID, client.ID
}

func (e *env) draft(t *testing.T, issuerID, clientID, number string) string {
	t.Helper()
	base := decimal.RequireFromString("1000.00")
	inv, err := e.invoices.CreateDraft(context.Background(), issuerID, dto.InvoiceRequest{
		ClientID: clientID, Series: "FACT", Number: number, Type: entity.InvoiceTypeOrdinary,
		TaxableBase: &base, TaxRate: decimal.NewFromInt(21),
	})
	require.NoError(t, err)
	return inv.ID
}

func TestPostgres_EmisionYAnulacion(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	issuerID, clientID := e.party(t, "B12345674")

	res, err := e.orch.Issue(ctx, issuerID, e.draft(t, issuerID, clientID, "0001"))
	require.NoError(t, err)
	assert.Equal(t, entity.GenesisFingerprint, res.Invoice.PreviousFingerprint)
	assert.True(t, decimal.RequireFromString("1210.00").Equal(res.Invoice.TotalAmount))

	second, err := e.orch.Issue(ctx, issuerID, e.draft(t, issuerID, clientID, "0002"))
	require.NoError(t, err)
	assert.Equal(t, res.Invoice.Fingerprint, second.Invoice.PreviousFingerprint)

	_, err = e.orch.Cancel(ctx, issuerID, res.Invoice.ID)
	require.NoError(t, err)

	report, err := e.verifier.Verify(ctx, issuerID)
	require.NoError(t, err)
	assert.True(t, report.Valid, "%v", report.Violations)
	assert.Equal(t, 3, report.Records)

	ver, err := e.orch.VerifyInvoice(ctx, issuerID, second.Invoice.ID)
	require.NoError(t, err)
	assert.True(t, ver.Valid)
}

func TestPostgres_NumeroDuplicado(t *testing.T) {
	e := setup(t)
	issuerID, clientID := e.party(t, "B12345674")
	e.draft(t, issuerID, clientID, "0001")

	base := decimal.RequireFromString("10.00")
	_, err := e.invoices.CreateDraft(context.Background(), issuerID, dto.InvoiceRequest{
		ClientID: clientID, Series: "FACT", Number: "0001", Type: entity.InvoiceTypeOrdinary,
		TaxableBase: &base, TaxRate: decimal.NewFromInt(21),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPostgres_ConcurrenciaPorEmisor(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a, clientA := e.party(t, "B12345674")
	b, clientB := e.party(t, "A58818501")

	const n = 15
	var ids []struct{ issuer, invoice string }
	for i := 0; i < n; i++ {
		ids = append(ids,
			struct{ issuer, invoice string }{a, e.draft(t, a, clientA, fmt.Sprintf("A%04d", i))},
			struct{ issuer, invoice string }{b, e.draft(t, b, clientB, fmt.Sprintf("B%04d", i))},
		)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(issuer, invoice string) {
			defer wg.Done()
			if _, err := e.orch.Issue(ctx, issuer, invoice); err != nil {
				errs <- err
			}
		}(id.issuer, id.invoice)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("emisión concurrente: %v", err)
	}

	for _, issuer := range []string{a, b} {
		report, err := e.verifier.Verify(ctx, issuer)
		require.NoError(t, err)
		assert.True(t, report.Valid, "%v", report.Violations)
		assert.Equal(t, n, report.Records)
	}
}

func TestPostgres_MigracionesAplicadas(t *testing.T) {
	e := setup(t)
	v, err := postgres.MigrationVersion(context.Background(), e.pool)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}
