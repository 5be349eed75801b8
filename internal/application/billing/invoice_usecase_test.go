package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDraft_CalculaImportes(t *testing.T) {
	f := newFixture(t)
	req := ordinaryRequest(f.clientID, "0001")
	req.WithholdingRate = dec("15")

	inv, err := f.invoices.CreateDraft(context.Background(), f.issuerID, req)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusDraft, inv.Status)
	assert.True(t, dec("210.00").Equal(inv.TaxAmount))
	assert.True(t, dec("150.00").Equal(inv.WithholdingAmount))
	assert.True(t, dec("1060.00").Equal(inv.TotalAmount))
	assert.Empty(t, inv.Fingerprint)
}

func TestCreateDraft_BaseDesdeLasLineas(t *testing.T) {
	f := newFixture(t)
	req := dto.InvoiceRequest{
		ClientID: f.clientID,
		Series:   "FACT",
		Number:   "0001",
		Type:     entity.InvoiceTypeOrdinary,
		TaxRate:  dec("21"),
		Lines: []dto.InvoiceLineRequest{
			{Description: "Horas de desarrollo", Quantity: dec("10"), UnitPrice: dec("45.50")},
			{Description: "Licencia", Quantity: dec("1"), UnitPrice: dec("545.00")},
		},
	}
	inv, err := f.invoices.CreateDraft(context.Background(), f.issuerID, req)
	require.NoError(t, err)
	assert.True(t, dec("1000.00").Equal(inv.TaxableBase))
	assert.True(t, dec("1210.00").Equal(inv.TotalAmount))
	require.Len(t, inv.Details, 2)
	assert.True(t, dec("21").Equal(inv.Details[0].TaxRate), "la línea hereda el tipo de la factura")

	_, err = f.orch.Issue(context.Background(), f.issuerID, inv.ID)
	require.NoError(t, err)
}

func TestCreateDraft_EntradaInvalida(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(*dto.InvoiceRequest){
		"tipo desconocido":      func(r *dto.InvoiceRequest) { r.Type = "proforma" },
		"sin serie":             func(r *dto.InvoiceRequest) { r.Series = " " },
		"sin base ni líneas":    func(r *dto.InvoiceRequest) { r.TaxableBase = nil },
		"tipo impositivo > 100": func(r *dto.InvoiceRequest) { r.TaxRate = dec("121") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := ordinaryRequest(f.clientID, "0001")
			mutate(&req)
			_, err := f.invoices.CreateDraft(ctx, f.issuerID, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}

	t.Run("cliente de otro emisor", func(t *testing.T) {
		_, err := f.invoices.CreateDraft(ctx, "otro-emisor", ordinaryRequest(f.clientID, "0001"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdateDraft_FacturaEmitidaEsInmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.draft(t, "0001")

	req := ordinaryRequest(f.clientID, "0001")
	req.Concept = "Concepto corregido"
	upd, err := f.invoices.UpdateDraft(ctx, f.issuerID, id, req)
	require.NoError(t, err)
	assert.Equal(t, "Concepto corregido", upd.Concept)

	issued, err := f.orch.Issue(ctx, f.issuerID, id)
	require.NoError(t, err)

	base := dec("5000.00")
	req.TaxableBase = &base
	_, err = f.invoices.UpdateDraft(ctx, f.issuerID, id, req)
	require.Error(t, err)
	assert.Equal(t, "VAL205", domain.CodeOf(err))

	stored := f.invoice(t, id)
	assert.True(t, issued.Invoice.TaxableBase.Equal(stored.TaxableBase))
	assert.Equal(t, issued.Invoice.Fingerprint, stored.Fingerprint)
}

func TestUpdateDraft_DuranteLaEmisionSeRechaza(t *testing.T) {
	h := &hookHasher{}
	f := newFixture(t, withOrchestratorOptions(billing.WithHasher(h)))
	ctx := context.Background()
	id := f.draft(t, "0001")

	req := ordinaryRequest(f.clientID, "0001")
	base := dec("5000.00")
	req.TaxableBase = &base
	var (
		updErr error
		wait   func()
	)
	h.onFingerprint = func() {
		wait = concurrently(func() {
			_, updErr = f.invoices.UpdateDraft(ctx, f.issuerID, id, req)
		})
	}

	issued, err := f.orch.Issue(ctx, f.issuerID, id)
	require.NoError(t, err)
	require.NotNil(t, wait)
	wait()

	require.Error(t, updErr)
	assert.Equal(t, "VAL205", domain.CodeOf(updErr))

	stored := f.invoice(t, id)
	assert.True(t, dec("1000.00").Equal(stored.TaxableBase))
	assert.True(t, dec("1210.00").Equal(stored.TotalAmount))
	assert.Equal(t, issued.Invoice.Fingerprint, stored.Fingerprint)

	report, err := f.verifier.Verify(ctx, f.issuerID)
	require.NoError(t, err)
	assert.True(t, report.Valid, "violaciones: %v", report.Violations)
}

func TestDiscardDraft_DuranteLaEmisionSeRechaza(t *testing.T) {
	h := &hookHasher{}
	f := newFixture(t, withOrchestratorOptions(billing.WithHasher(h)))
	ctx := context.Background()
	id := f.draft(t, "0001")

	var (
		discardErr error
		wait       func()
	)
	h.onFingerprint = func() {
		wait = concurrently(func() {
			discardErr = f.invoices.DiscardDraft(ctx, f.issuerID, id)
		})
	}

	_, err := f.orch.Issue(ctx, f.issuerID, id)
	require.NoError(t, err)
	require.NotNil(t, wait)
	wait()

	require.Error(t, discardErr)
	assert.Equal(t, "VAL206", domain.CodeOf(discardErr))
	stored := f.invoice(t, id)
	assert.False(t, stored.IsDeleted)
	assert.Equal(t, entity.InvoiceStatusIssued, stored.Status)
}

func TestMarkPaid_Transiciones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.draft(t, "0001")
	_, err := f.invoices.MarkPaid(ctx, f.issuerID, draft)
	require.Error(t, err)
	assert.Equal(t, "VAL204", domain.CodeOf(err))

	inv := f.issue(t, "0002")
	res, err := f.invoices.MarkOverdue(ctx, f.issuerID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusOverdue, res.Status)

	res, err = f.invoices.MarkPaid(ctx, f.issuerID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPaid, res.Status)

	stored := f.invoice(t, inv.ID)
	assert.Equal(t, inv.Fingerprint, stored.Fingerprint, "el cobro no toca la atestación")
}

func TestDiscardDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.draft(t, "0001")
	require.NoError(t, f.invoices.DiscardDraft(ctx, f.issuerID, id))
	_, err := f.invoices.Get(ctx, f.issuerID, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// el número queda libre tras descartar
	f.draft(t, "0001")

	inv := f.issue(t, "0002")
	err = f.invoices.DiscardDraft(ctx, f.issuerID, inv.ID)
	require.Error(t, err)
	assert.Equal(t, "VAL206", domain.CodeOf(err))
}

func TestListByIssuer(t *testing.T) {
	f := newFixture(t)
	f.draft(t, "0001")
	f.issue(t, "0002")

	list, err := f.invoices.ListByIssuer(context.Background(), f.issuerID, dto.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	other, err := f.invoices.ListByIssuer(context.Background(), "otro-emisor", dto.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, other)
}
