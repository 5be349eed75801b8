package entity

import "github.com/shopspring/decimal"

// InvoiceDetail representa una línea de detalle de una factura.
// Subtotal, impuesto y total de línea son derivados; no se guardan por separado.
type InvoiceDetail struct {
	ID          string
	InvoiceID   string
	Position    int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal // porcentaje
}

var hundred = decimal.NewFromInt(100)

// Subtotal cantidad por precio unitario, redondeado a céntimos.
func (d *InvoiceDetail) Subtotal() decimal.Decimal {
	return d.Quantity.Mul(d.UnitPrice).Round(2)
}

// Tax cuota de IVA de la línea.
func (d *InvoiceDetail) Tax() decimal.Decimal {
	return d.Subtotal().Mul(d.TaxRate).Div(hundred).Round(2)
}

// Total subtotal más cuota.
func (d *InvoiceDetail) Total() decimal.Decimal {
	return d.Subtotal().Add(d.Tax())
}
