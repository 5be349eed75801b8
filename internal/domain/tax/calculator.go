// Package tax calcula cuotas de IVA y retención con aritmética decimal exacta.
package tax

import (
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	// Tolerance diferencia máxima admitida al comparar importes: un céntimo.
	Tolerance = decimal.New(1, -2)
)

// Result importes calculados, todos redondeados a 2 decimales.
type Result struct {
	TaxableBase       decimal.Decimal
	TaxAmount         decimal.Decimal
	WithholdingAmount decimal.Decimal
	TotalAmount       decimal.Decimal
}

// Compute calcula cuota = round(base*tipo/100, 2), retención = round(base*ret/100, 2)
// y total = base + cuota - retención. Redondeo half-up en cada paso, antes del total.
func Compute(taxableBase, taxRate, withholdingRate decimal.Decimal) (Result, error) {
	if taxableBase.IsNegative() {
		return Result{}, domain.NewValidationError("VAL101", "la base imponible no puede ser negativa")
	}
	return compute(taxableBase, taxRate, withholdingRate)
}

// ComputeSigned como Compute pero admite bases negativas (rectificativas por abono).
// El resultado es simétrico: ComputeSigned(-b) == -ComputeSigned(b).
func ComputeSigned(taxableBase, taxRate, withholdingRate decimal.Decimal) (Result, error) {
	if !taxableBase.IsNegative() {
		return compute(taxableBase, taxRate, withholdingRate)
	}
	r, err := compute(taxableBase.Neg(), taxRate, withholdingRate)
	if err != nil {
		return Result{}, err
	}
	return Result{
		TaxableBase:       r.TaxableBase.Neg(),
		TaxAmount:         r.TaxAmount.Neg(),
		WithholdingAmount: r.WithholdingAmount.Neg(),
		TotalAmount:       r.TotalAmount.Neg(),
	}, nil
}

func compute(base, taxRate, withholdingRate decimal.Decimal) (Result, error) {
	if !validRate(taxRate) {
		return Result{}, domain.NewValidationError("VAL102", "el tipo impositivo debe estar entre 0 y 100")
	}
	if !validRate(withholdingRate) {
		return Result{}, domain.NewValidationError("VAL103", "el tipo de retención debe estar entre 0 y 100")
	}
	base = base.Round(2)
	taxAmount := base.Mul(taxRate).Div(hundred).Round(2)
	withholding := base.Mul(withholdingRate).Div(hundred).Round(2)
	return Result{
		TaxableBase:       base,
		TaxAmount:         taxAmount,
		WithholdingAmount: withholding,
		TotalAmount:       base.Add(taxAmount).Sub(withholding),
	}, nil
}

func validRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThanOrEqual(hundred)
}

// WithinTolerance indica si a y b difieren como mucho en tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
