package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

// InvoiceRepository define el puerto de persistencia para Invoice y detalles.
// GetByID devuelve (nil, nil) si no existe.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	CreateDetail(ctx context.Context, detail *entity.InvoiceDetail) error
	// ReplaceDetails sustituye todas las líneas de un borrador.
	ReplaceDetails(ctx context.Context, invoiceID string, details []*entity.InvoiceDetail) error
	// UpdateDraft actualiza los campos de contenido. Solo afecta a borradores;
	// devuelve domain.ErrConflict si la factura ya no es borrador.
	UpdateDraft(ctx context.Context, invoice *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	GetDetailsByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.InvoiceDetail, error)
	ListByIssuer(ctx context.Context, issuerID string, limit, offset int) ([]*entity.Invoice, error)

	// MarkIssued escribe los campos de atestación y pasa borrador -> emitida en una sola
	// sentencia. Devuelve domain.ErrConflict si la factura no estaba en borrador.
	MarkIssued(ctx context.Context, invoice *entity.Invoice) error
	// UpdateStatus transición condicional from -> to. domain.ErrConflict si el estado
	// actual no es from.
	UpdateStatus(ctx context.Context, id, from, to string, at time.Time) error
	UpdateSubmissionStatus(ctx context.Context, id, status string) error
	// SoftDelete descarta un borrador. Las facturas emitidas nunca se borran.
	SoftDelete(ctx context.Context, id string, at time.Time) error
}
