package fiscal

import (
	"fmt"

	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

// transiciones permitidas. emitida, pagada y vencida son terminales en cuanto a contenido;
// cancelada es terminal del todo.
var transitions = map[string][]string{
	entity.InvoiceStatusDraft:   {entity.InvoiceStatusIssued},
	entity.InvoiceStatusIssued:  {entity.InvoiceStatusPaid, entity.InvoiceStatusOverdue, entity.InvoiceStatusCancelled},
	entity.InvoiceStatusOverdue: {entity.InvoiceStatusPaid},
}

// CanTransition indica si from -> to es una transición válida.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition devuelve un ValidationError si from -> to no está permitida.
func CheckTransition(from, to string) error {
	if CanTransition(from, to) {
		return nil
	}
	switch {
	case to == entity.InvoiceStatusCancelled && from == entity.InvoiceStatusDraft:
		return domain.NewValidationError("VAL201", "un borrador no se anula; se descarta")
	case to == entity.InvoiceStatusCancelled && from == entity.InvoiceStatusCancelled:
		return domain.NewValidationError("VAL202", "la factura ya está anulada")
	case to == entity.InvoiceStatusCancelled:
		return domain.NewValidationError("VAL203",
			fmt.Sprintf("solo se pueden anular facturas emitidas (estado actual: %s)", from))
	default:
		return domain.NewValidationError("VAL204", fmt.Sprintf("transición no permitida: %s -> %s", from, to))
	}
}

// EnsureMutable devuelve un ValidationError si la factura ya no admite cambios de contenido.
func EnsureMutable(inv *entity.Invoice) error {
	if inv.IsDraft() && !inv.IsDeleted {
		return nil
	}
	return domain.NewValidationError("VAL205",
		fmt.Sprintf("la factura en estado %s no admite modificaciones", inv.Status))
}
