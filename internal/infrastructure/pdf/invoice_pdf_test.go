package pdf_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/infrastructure/pdf"
)

func emitida() billing.InvoicePrint {
	return billing.InvoicePrint{
		Issuer: &entity.Issuer{Name: "Emisor SL", TaxID: "B12345674", City: "Bilbao", PostalCode: "48001"},
		Client: &entity.Client{Name: "Cliente SA", TaxID: "12345678Z"},
		Invoice: &entity.Invoice{
			Series: "FACT", Number: "0001", Type: entity.InvoiceTypeOrdinary,
			IssueDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			Concept:       "Servicios de consultoría",
			TaxableBase:   decimal.RequireFromString("1000.00"),
			TaxRate:       decimal.NewFromInt(21),
			TaxAmount:     decimal.RequireFromString("210.00"),
			TotalAmount:   decimal.RequireFromString("1210.00"),
			Status:        entity.InvoiceStatusIssued,
			Fingerprint:   strings.Repeat("ab", 32),
			AttestationID: "TBAI-B12345674-010326-0001",
			QRPayload:     "https://batuz.eus/QRTBAI/verificar?id=TBAI-B12345674-010326-0001",
			Signed:        true,
		},
	}
}

func TestGenerateInvoicePDF_Emitida(t *testing.T) {
	doc, err := pdf.NewMarotoPDFGenerator().GenerateInvoicePDF(context.Background(), emitida())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(doc), "%PDF"))
}

func TestGenerateInvoicePDF_AnuladaConLineasYSinDestinatario(t *testing.T) {
	p := emitida()
	p.Client = nil
	p.Invoice.Status = entity.InvoiceStatusCancelled
	p.Invoice.Signed = false
	p.Invoice.WithholdingRate = decimal.NewFromInt(15)
	p.Invoice.WithholdingAmount = decimal.RequireFromString("150.00")
	p.Details = []*entity.InvoiceDetail{
		{Position: 1, Description: "Horas", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100), TaxRate: decimal.NewFromInt(21)},
	}
	doc, err := pdf.NewMarotoPDFGenerator().GenerateInvoicePDF(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, doc)
}

func TestGenerateInvoicePDF_SinEmisor(t *testing.T) {
	p := emitida()
	p.Issuer = nil
	_, err := pdf.NewMarotoPDFGenerator().GenerateInvoicePDF(context.Background(), p)
	assert.Error(t, err)
}

func TestFormatEuros(t *testing.T) {
	cases := map[string]string{
		"0":       "0,00 €",
		"1234.5":  "1.234,50 €",
		"1000000": "1.000.000,00 €",
		"-99.999": "-100,00 €",
		"210.004": "210,00 €",
	}
	for in, want := range cases {
		assert.Equal(t, want, pdf.FormatEuros(decimal.RequireFromString(in)), in)
	}
}
