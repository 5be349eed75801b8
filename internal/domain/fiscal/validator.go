package fiscal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/tax"
	"github.com/jhoicas/facturae-api/pkg/fiscal"
	"github.com/shopspring/decimal"
)

// ErrInvalidInvoice agrupa los errores de validación previos a la emisión.
var ErrInvalidInvoice = fmt.Errorf("%w: factura no válida para emisión", domain.ErrValidation)

// Ventanas por defecto para la fecha de expedición.
const (
	DefaultPastWindow   = 5 * 365 * 24 * time.Hour
	DefaultFutureWindow = 30 * 24 * time.Hour
)

// DefaultSimplifiedCeiling importe máximo de una factura simplificada.
var DefaultSimplifiedCeiling = decimal.NewFromInt(3000)

// ValidatorConfig parámetros de política de la validación.
type ValidatorConfig struct {
	SimplifiedCeiling decimal.Decimal
	Tolerance         decimal.Decimal
	PastWindow        time.Duration
	FutureWindow      time.Duration
	Now               func() time.Time
}

// ValidationInput factura a validar con sus dependencias ya cargadas. Original es la
// factura rectificada (nil si no existe o no aplica).
type ValidationInput struct {
	Invoice  *entity.Invoice
	Details  []*entity.InvoiceDetail
	Client   *entity.Client
	Original *entity.Invoice
}

// Validator aplica las reglas de la transición borrador -> emitida.
type Validator interface {
	Validate(in ValidationInput) error
}

// RuleValidator implementación por reglas. Acumula todas las infracciones en lugar de
// detenerse en la primera.
type RuleValidator struct {
	cfg ValidatorConfig
}

var _ Validator = (*RuleValidator)(nil)

// NewValidator construye el validador completando los valores por defecto.
func NewValidator(cfg ValidatorConfig) *RuleValidator {
	if cfg.SimplifiedCeiling.IsZero() {
		cfg.SimplifiedCeiling = DefaultSimplifiedCeiling
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = tax.Tolerance
	}
	if cfg.PastWindow == 0 {
		cfg.PastWindow = DefaultPastWindow
	}
	if cfg.FutureWindow == 0 {
		cfg.FutureWindow = DefaultFutureWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RuleValidator{cfg: cfg}
}

// Validate devuelve nil o errors.Join(ErrInvalidInvoice, infracciones...).
// domain.Violations extrae la lista.
func (v *RuleValidator) Validate(in ValidationInput) error {
	inv := in.Invoice
	if inv == nil {
		return errors.Join(ErrInvalidInvoice, errors.New("factura nula"))
	}
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Comunes.
	if strings.TrimSpace(inv.Series) == "" {
		add("la serie es obligatoria")
	}
	if strings.TrimSpace(inv.Number) == "" {
		add("el número es obligatorio")
	}
	if inv.ClientID == "" || in.Client == nil {
		add("la referencia al cliente es obligatoria")
	}
	if inv.IssueDate.IsZero() {
		add("la fecha de expedición es obligatoria")
	} else {
		now := v.cfg.Now()
		if inv.IssueDate.Before(now.Add(-v.cfg.PastWindow)) {
			add("la fecha de expedición %s es anterior a la ventana admitida", FormatTimestamp(inv.IssueDate))
		}
		if inv.IssueDate.After(now.Add(v.cfg.FutureWindow)) {
			add("la fecha de expedición %s es posterior a la ventana admitida", FormatTimestamp(inv.IssueDate))
		}
		if inv.OperationDate != nil && inv.OperationDate.After(inv.IssueDate) {
			add("la fecha de operación no puede ser posterior a la de expedición")
		}
	}
	if !entity.ValidInvoiceType(inv.Type) {
		add("tipo de factura desconocido: %q", inv.Type)
	}
	if inv.Type != entity.InvoiceTypeSimplified && in.Client != nil {
		if strings.TrimSpace(in.Client.TaxID) == "" {
			add("el NIF del destinatario es obligatorio")
		} else if _, err := fiscal.ValidateTaxID(in.Client.TaxID); err != nil {
			add("NIF del destinatario no válido: %v", err)
		}
	}

	// Por tipo.
	switch inv.Type {
	case entity.InvoiceTypeOrdinary:
		if !inv.TaxableBase.IsPositive() {
			add("la base imponible de una factura ordinaria debe ser mayor que cero")
		}
	case entity.InvoiceTypeCorrective:
		if strings.TrimSpace(inv.CorrectiveReason) == "" {
			add("el motivo de rectificación es obligatorio")
		}
		if inv.OriginalInvoiceID == nil || *inv.OriginalInvoiceID == "" {
			add("la referencia a la factura rectificada es obligatoria")
		} else {
			switch orig := in.Original; {
			case orig == nil:
				add("la factura rectificada %s no existe", *inv.OriginalInvoiceID)
			case orig.IssuerID != inv.IssuerID:
				add("la factura rectificada pertenece a otro emisor")
			case orig.Status == entity.InvoiceStatusDraft, orig.Status == entity.InvoiceStatusCancelled:
				add("la factura rectificada debe estar emitida (estado actual: %s)", orig.Status)
			}
		}
	case entity.InvoiceTypeSimplified:
		if inv.TotalAmount.GreaterThan(v.cfg.SimplifiedCeiling) {
			add("el total %s supera el límite de factura simplificada (%s)",
				inv.TotalAmount.StringFixed(2), v.cfg.SimplifiedCeiling.StringFixed(2))
		}
	case entity.InvoiceTypeSummary:
		if strings.TrimSpace(inv.SummaryPeriod) == "" {
			add("el periodo de la factura recapitulativa es obligatorio")
		}
	}
	if inv.TaxableBase.IsNegative() && inv.Type != entity.InvoiceTypeCorrective {
		add("solo las facturas rectificativas admiten base imponible negativa")
	}

	// Líneas.
	if len(in.Details) > 0 {
		var subtotal decimal.Decimal
		for _, d := range in.Details {
			subtotal = subtotal.Add(d.Subtotal())
		}
		if !tax.WithinTolerance(subtotal, inv.TaxableBase, v.cfg.Tolerance) {
			add("la suma de las líneas (%s) no coincide con la base imponible (%s)",
				subtotal.StringFixed(2), inv.TaxableBase.StringFixed(2))
		}
	}

	// Comprobación numérica final.
	res, err := tax.ComputeSigned(inv.TaxableBase, inv.TaxRate, inv.WithholdingRate)
	if err != nil {
		errs = append(errs, errors.New(violationText(err)))
	} else {
		if !tax.WithinTolerance(res.TaxAmount, inv.TaxAmount, v.cfg.Tolerance) {
			add("la cuota de IVA %s no coincide con la calculada %s",
				inv.TaxAmount.StringFixed(2), res.TaxAmount.StringFixed(2))
		}
		if !tax.WithinTolerance(res.WithholdingAmount, inv.WithholdingAmount, v.cfg.Tolerance) {
			add("la retención %s no coincide con la calculada %s",
				inv.WithholdingAmount.StringFixed(2), res.WithholdingAmount.StringFixed(2))
		}
		if !tax.WithinTolerance(res.TotalAmount, inv.TotalAmount, v.cfg.Tolerance) {
			add("el total %s no coincide con el calculado %s",
				inv.TotalAmount.StringFixed(2), res.TotalAmount.StringFixed(2))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidInvoice}, errs...)...)
}

func violationText(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
