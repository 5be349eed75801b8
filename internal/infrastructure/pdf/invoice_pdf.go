// Package pdf genera la representación impresa de una factura emitida.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  CABECERA: Razón social + NIF  │  Tipo, serie-número, fecha │
//	│  EMISOR: dirección                                           │
//	│  DESTINATARIO: nombre + NIF + dirección                      │
//	│  TABLA: Cant | Descripción | P.Unit | IVA | Base             │
//	│  TOTALES: Base imponible / IVA / Retención / TOTAL           │
//	│  PIE: huella encadenada + QR de verificación + leyenda       │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorRed     = &props.Color{Red: 180, Green: 20, Blue: 20}
)

var typeTitles = map[string]string{
	entity.InvoiceTypeOrdinary:   "FACTURA",
	entity.InvoiceTypeCorrective: "FACTURA RECTIFICATIVA",
	entity.InvoiceTypeSimplified: "FACTURA SIMPLIFICADA",
	entity.InvoiceTypeSummary:    "FACTURA RECAPITULATIVA",
}

// MarotoPDFGenerator implementa billing.InvoicePDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

var _ billing.InvoicePDFGenerator = (*MarotoPDFGenerator)(nil)

// GenerateInvoicePDF genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateInvoicePDF(_ context.Context, p billing.InvoicePrint) ([]byte, error) {
	if p.Invoice == nil || p.Issuer == nil {
		return nil, fmt.Errorf("pdf: factura y emisor son obligatorios")
	}
	inv := p.Invoice
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(invoiceNumber(inv), true).
		WithAuthor(p.Issuer.Name, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(inv, p.Issuer))
	if inv.Status == entity.InvoiceStatusCancelled {
		m.AddRows(row.New(8).Add(col.New(12).Add(
			text.New("ANULADA", props.Text{Style: fontstyle.Bold, Size: 14, Align: align.Center, Color: colorRed, Top: 1}),
		)))
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(issuerRow(p.Issuer))
	m.AddRows(clientRow(p.Client))
	if extra := referenceRow(inv); extra != nil {
		m.AddRows(extra)
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(tableDetailRows(inv, p.Details)...)

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(inv))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(attestationFooterRows(inv)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

func invoiceNumber(inv *entity.Invoice) string {
	return inv.Series + "-" + inv.Number
}

func headerRow(inv *entity.Invoice, issuer *entity.Issuer) core.Row {
	title, ok := typeTitles[inv.Type]
	if !ok {
		title = "FACTURA"
	}
	return row.New(18).Add(
		col.New(7).Add(
			text.New(issuer.Name, props.Text{Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1}),
			text.New("NIF: "+issuer.TaxID, props.Text{Size: 9, Top: 9, Color: colorGray}),
		),
		col.New(5).Add(
			text.New(title, props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorPrimary, Top: 1}),
			text.New(invoiceNumber(inv), props.Text{Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7}),
			text.New("Fecha de expedición: "+inv.IssueDate.Format("02/01/2006"), props.Text{Size: 8, Align: align.Right, Top: 14, Color: colorGray}),
		),
	)
}

func issuerRow(issuer *entity.Issuer) core.Row {
	return row.New(12).Add(col.New(12).Add(
		text.New("EMISOR", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
		text.New(address(issuer.Address, issuer.PostalCode, issuer.City), props.Text{Size: 8, Top: 7, Color: colorGray}),
	))
}

func clientRow(client *entity.Client) core.Row {
	if client == nil {
		return row.New(8).Add(col.New(12).Add(
			text.New("DESTINATARIO: no identificado", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
		))
	}
	return row.New(18).Add(col.New(12).Add(
		text.New("DESTINATARIO", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
		text.New(client.Name, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
		text.New(fmt.Sprintf("NIF: %s   |   %s",
			nonEmpty(client.TaxID, "-"),
			address(client.Address, client.PostalCode, client.City),
		), props.Text{Size: 8, Top: 12, Color: colorGray}),
	))
}

// referenceRow motivo de la rectificación o periodo de la recapitulativa.
func referenceRow(inv *entity.Invoice) core.Row {
	var msg string
	switch inv.Type {
	case entity.InvoiceTypeCorrective:
		msg = "Rectifica por: " + inv.CorrectiveReason
	case entity.InvoiceTypeSummary:
		msg = "Periodo: " + inv.SummaryPeriod
	default:
		return nil
	}
	return row.New(6).Add(col.New(12).Add(text.New(msg, props.Text{Size: 8, Top: 1})))
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 5, align.Left),
		h("Precio unit.", 2, align.Right),
		h("IVA%", 1, align.Center),
		h("Base", 3, align.Right),
	)
}

// tableDetailRows una fila por línea; sin líneas, una única fila con el concepto.
func tableDetailRows(inv *entity.Invoice, details []*entity.InvoiceDetail) []core.Row {
	if len(details) == 0 {
		concept := nonEmpty(inv.Concept, inv.Description)
		return []core.Row{detailRow("1", concept, inv.TaxableBase, inv.TaxRate, inv.TaxableBase)}
	}
	rows := make([]core.Row, 0, len(details))
	for _, d := range details {
		rows = append(rows, detailRow(d.Quantity.String(), d.Description, d.UnitPrice, d.TaxRate, d.Subtotal()))
	}
	return rows
}

func detailRow(qty, description string, unit, rate, base decimal.Decimal) core.Row {
	return row.New(7).Add(
		col.New(1).Add(text.New(qty, props.Text{Size: 8, Align: align.Center, Top: 1})),
		col.New(5).Add(text.New(description, props.Text{Size: 8, Top: 1, Left: 1})),
		col.New(2).Add(text.New(FormatEuros(unit), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
		col.New(1).Add(text.New(rate.String()+"%", props.Text{Size: 8, Align: align.Center, Top: 1})),
		col.New(3).Add(text.New(FormatEuros(base), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
	)
}

func totalsRow(inv *entity.Invoice) core.Row {
	labels := []string{"Base imponible:", fmt.Sprintf("IVA (%s%%):", inv.TaxRate.String())}
	values := []string{FormatEuros(inv.TaxableBase), FormatEuros(inv.TaxAmount)}
	if !inv.WithholdingAmount.IsZero() {
		labels = append(labels, fmt.Sprintf("Retención IRPF (%s%%):", inv.WithholdingRate.String()))
		values = append(values, "-"+FormatEuros(inv.WithholdingAmount))
	}

	left := col.New(3)
	right := col.New(3)
	for i := range labels {
		top := float64(i * 5)
		left.Add(text.New(labels[i], props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2, Top: top}))
		right.Add(text.New(values[i], props.Text{Size: 9, Align: align.Right, Right: 1, Top: top}))
	}
	top := float64(len(labels) * 5)
	left.Add(text.New("TOTAL:", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 2, Top: top}))
	right.Add(text.New(FormatEuros(inv.TotalAmount), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1, Top: top}))

	return row.New(26).Add(col.New(3), left, right, col.New(3))
}

// attestationFooterRows huella partida, identificador de atestación y QR.
func attestationFooterRows(inv *entity.Invoice) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("REGISTRO DE FACTURACIÓN", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
		)),
		row.New(5).Add(col.New(12).Add(
			text.New("Identificador: "+inv.AttestationID, props.Text{Size: 7, Top: 1}),
		)),
		row.New(5).Add(col.New(12).Add(
			text.New("Huella (SHA-256):", props.Text{Style: fontstyle.Bold, Size: 7, Top: 1}),
		)),
	}
	for _, chunk := range splitEvery(inv.Fingerprint, 80) {
		rows = append(rows, row.New(4).Add(col.New(12).Add(
			text.New(chunk, props.Text{Size: 6.5, Color: colorGray, Top: 0.5, Left: 2}),
		)))
	}
	rows = append(rows, row.New(3))

	if inv.QRPayload != "" {
		rows = append(rows, row.New(45).Add(
			col.New(4).Add(code.NewQr(inv.QRPayload, props.Rect{Percent: 95, Center: true})),
			col.New(8).Add(
				text.New("Escanee el código QR para comprobar\nesta factura en la sede electrónica.", props.Text{Size: 8, Top: 4, Left: 3, Color: colorGray}),
				text.New(inv.QRPayload, props.Text{Size: 6, Top: 20, Left: 3, Color: colorGray}),
			),
		))
	}
	if !inv.Signed {
		rows = append(rows, row.New(6).Add(col.New(12).Add(
			text.New("Documento sin firma electrónica (entorno de pruebas).", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorRed, Top: 1}),
		)))
	}
	return rows
}

func address(street, postalCode, city string) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(street); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(postalCode + " " + city); s != "" {
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// FormatEuros importe con separador de miles y coma decimal: 1234.5 → "1.234,50 €".
func FormatEuros(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	return sign + groupThousands(intPart) + "," + frac + " €"
}

// groupThousands inserta puntos de miles en un string numérico sin decimales.
// Ej: "25000" → "25.000", "1000000" → "1.000.000"
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// splitEvery divide s en trozos de max n caracteres.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
