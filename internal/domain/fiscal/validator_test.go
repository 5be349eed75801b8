package fiscal_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/fiscal"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newValidator() *fiscal.RuleValidator {
	return fiscal.NewValidator(fiscal.ValidatorConfig{Now: func() time.Time { return fixedNow }})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func validInvoice() *entity.Invoice {
	return &entity.Invoice{
		ID:          "inv-1",
		IssuerID:    "issuer-1",
		ClientID:    "client-1",
		Series:      "FACT",
		Number:      "0001",
		Type:        entity.InvoiceTypeOrdinary,
		IssueDate:   fixedNow.Add(-time.Hour),
		TaxableBase: dec("1000.00"),
		TaxRate:     dec("21"),
		TaxAmount:   dec("210.00"),
		TotalAmount: dec("1210.00"),
		Status:      entity.InvoiceStatusDraft,
	}
}

func validClient() *entity.Client {
	return &entity.Client{ID: "client-1", IssuerID: "issuer-1", Name: "Cliente SL", TaxID: "B12345674"}
}

func TestValidate_FacturaOrdinariaValida(t *testing.T) {
	err := newValidator().Validate(fiscal.ValidationInput{Invoice: validInvoice(), Client: validClient()})
	assert.NoError(t, err)
}

func TestValidate_AcumulaTodasLasInfracciones(t *testing.T) {
	inv := validInvoice()
	inv.Series = ""
	inv.Number = ""
	inv.TaxAmount = dec("200.00")

	err := newValidator().Validate(fiscal.ValidationInput{Invoice: inv, Client: validClient()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.True(t, errors.Is(err, fiscal.ErrInvalidInvoice))

	v := domain.Violations(err)
	assert.Len(t, v, 3) // serie, número y cuota
}

func TestValidate_VentanaDeFechas(t *testing.T) {
	past := validInvoice()
	past.IssueDate = fixedNow.AddDate(-6, 0, 0)
	assert.Error(t, newValidator().Validate(fiscal.ValidationInput{Invoice: past, Client: validClient()}))

	future := validInvoice()
	future.IssueDate = fixedNow.AddDate(0, 0, 31)
	assert.Error(t, newValidator().Validate(fiscal.ValidationInput{Invoice: future, Client: validClient()}))

	edge := validInvoice()
	edge.IssueDate = fixedNow.AddDate(0, 0, 29)
	assert.NoError(t, newValidator().Validate(fiscal.ValidationInput{Invoice: edge, Client: validClient()}))
}

func TestValidate_OrdinariaBaseCero(t *testing.T) {
	inv := validInvoice()
	inv.TaxableBase, inv.TaxAmount, inv.TotalAmount = decimal.Zero, decimal.Zero, decimal.Zero
	err := newValidator().Validate(fiscal.ValidationInput{Invoice: inv, Client: validClient()})
	require.Error(t, err)
	assert.Contains(t, domain.Violations(err)[0], "mayor que cero")
}

func TestValidate_RectificativaSinMotivoNiOriginal(t *testing.T) {
	inv := validInvoice()
	inv.Type = entity.InvoiceTypeCorrective
	inv.Series = "RECT"

	err := newValidator().Validate(fiscal.ValidationInput{Invoice: inv, Client: validClient()})
	require.Error(t, err)
	v := domain.Violations(err)
	require.Len(t, v, 2)
	assert.Contains(t, v[0], "motivo de rectificación")
	assert.Contains(t, v[1], "factura rectificada")
}

func TestValidate_RectificativaConOriginalInexistente(t *testing.T) {
	inv := validInvoice()
	inv.Type = entity.InvoiceTypeCorrective
	inv.CorrectiveReason = "error en el precio"
	orig := "no-existe"
	inv.OriginalInvoiceID = &orig

	err := newValidator().Validate(fiscal.ValidationInput{Invoice: inv, Client: validClient()})
	require.Error(t, err)
	assert.Contains(t, domain.Violations(err)[0], "no existe")
}

func TestValidate_RectificativaAbono(t *testing.T) {
	inv := validInvoice()
	inv.Type = entity.InvoiceTypeCorrective
	inv.CorrectiveReason = "devolución"
	orig := "inv-0"
	inv.OriginalInvoiceID = &orig
	inv.TaxableBase, inv.TaxAmount, inv.TotalAmount = dec("-100.00"), dec("-21.00"), dec("-121.00")

	original := validInvoice()
	original.ID = "inv-0"
	original.Status = entity.InvoiceStatusIssued

	err := newValidator().Validate(fiscal.ValidationInput{Invoice: inv, Client: validClient(), Original: original})
	assert.NoError(t, err)
}

func TestValidate_TechoSimplificada(t *testing.T) {
	v := newValidator()
	at := validInvoice()
	at.Type = entity.InvoiceTypeSimplified
	at.TaxableBase, at.TaxAmount, at.TotalAmount = dec("2479.34"), dec("520.66"), dec("3000.00")
	assert.NoError(t, v.Validate(fiscal.ValidationInput{Invoice: at, Client: &entity.Client{ID: "client-1"}}))

	above := validInvoice()
	above.Type = entity.InvoiceTypeSimplified
	above.TaxableBase, above.TaxAmount, above.TotalAmount = dec("2480.00"), dec("520.80"), dec("3000.80")
	err := v.Validate(fiscal.ValidationInput{Invoice: above, Client: &entity.Client{ID: "client-1"}})
	require.Error(t, err)
	assert.Contains(t, domain.Violations(err)[0], "3000.00")
}

func TestValidate_RecapitulativaSinPeriodo(t *testing.T) {
	inv := validInvoice()
	inv.Type = entity.InvoiceTypeSummary
	err := newValidator().Validate(fiscal.ValidationInput{Invoice: inv, Client: validClient()})
	require.Error(t, err)
	assert.Contains(t, domain.Violations(err)[0], "periodo")

	inv.SummaryPeriod = "2024-05"
	assert.NoError(t, newValidator().Validate(fiscal.ValidationInput{Invoice: inv, Client: validClient()}))
}

func TestValidate_NIFDestinatarioInvalido(t *testing.T) {
	client := validClient()
	client.TaxID = "B12345675"
	err := newValidator().Validate(fiscal.ValidationInput{Invoice: validInvoice(), Client: client})
	require.Error(t, err)
	assert.Contains(t, domain.Violations(err)[0], "NIF")
}

func TestValidate_ToleranciaDeUnCentimo(t *testing.T) {
	inv := validInvoice()
	inv.TotalAmount = dec("1210.01")
	assert.NoError(t, newValidator().Validate(fiscal.ValidationInput{Invoice: inv, Client: validClient()}))

	inv.TotalAmount = dec("1210.02")
	assert.Error(t, newValidator().Validate(fiscal.ValidationInput{Invoice: inv, Client: validClient()}))
}

func TestValidate_LineasDescuadradas(t *testing.T) {
	details := []*entity.InvoiceDetail{
		{Description: "a", Quantity: dec("2"), UnitPrice: dec("300"), TaxRate: dec("21")},
		{Description: "b", Quantity: dec("1"), UnitPrice: dec("300"), TaxRate: dec("21")},
	}
	err := newValidator().Validate(fiscal.ValidationInput{Invoice: validInvoice(), Client: validClient(), Details: details})
	require.Error(t, err)
	assert.Contains(t, domain.Violations(err)[0], "suma de las líneas")
}
