package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

// AttestationRepository registros encadenados (solo inserción).
type AttestationRepository interface {
	Append(ctx context.Context, rec *entity.AttestationRecord) error
	// ListByIssuer devuelve la cadena completa del emisor ordenada por seq.
	ListByIssuer(ctx context.Context, issuerID string) ([]*entity.AttestationRecord, error)
	// GetByInvoice devuelve el registro de tipo kind de la factura, o nil.
	GetByInvoice(ctx context.Context, invoiceID, kind string) (*entity.AttestationRecord, error)
}

// ChainRepository cabecera de la cadena de cada emisor.
type ChainRepository interface {
	// LockHead bloquea (y crea si no existe) la cabecera de la cadena hasta el fin de la
	// transacción.
	LockHead(ctx context.Context, issuerID string) (*entity.ChainHead, error)
	// Advance mueve la cabecera al nuevo último eslabón.
	Advance(ctx context.Context, head *entity.ChainHead) error
	GetHead(ctx context.Context, issuerID string) (*entity.ChainHead, error)
}

// SubmissionRepository seguimiento de envíos al servicio externo.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *entity.Submission) error
	Update(ctx context.Context, sub *entity.Submission) error
	GetByID(ctx context.Context, id string) (*entity.Submission, error)
	// ListDue envíos pendientes cuyo próximo intento ya venció.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Submission, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Submission, error)
}

// Repos agrupa los repositorios atados a una misma transacción.
type Repos struct {
	Invoices    InvoiceRepository
	Clients     ClientRepository
	Issuers     IssuerRepository
	Records     AttestationRepository
	Chains      ChainRepository
	Submissions SubmissionRepository
	Users       UserRepository
}
