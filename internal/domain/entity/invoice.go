package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de factura (normativa española de facturación).
const (
	InvoiceTypeOrdinary   = "ordinaria"
	InvoiceTypeCorrective = "rectificativa"
	InvoiceTypeSimplified = "simplificada"
	InvoiceTypeSummary    = "recapitulativa"
)

// Estados del ciclo de vida de la factura.
const (
	InvoiceStatusDraft     = "borrador"  // Editable; no pertenece a ninguna cadena
	InvoiceStatusIssued    = "emitida"   // Atestada, firmada y encadenada
	InvoiceStatusPaid      = "pagada"    // Cobrada
	InvoiceStatusOverdue   = "vencida"   // Vencida sin cobrar
	InvoiceStatusCancelled = "cancelada" // Anulada con un registro de anulación encadenado
)

// ValidInvoiceType indica si t es uno de los tipos soportados.
func ValidInvoiceType(t string) bool {
	switch t {
	case InvoiceTypeOrdinary, InvoiceTypeCorrective, InvoiceTypeSimplified, InvoiceTypeSummary:
		return true
	}
	return false
}

// Invoice representa la cabecera de una factura.
type Invoice struct {
	ID       string
	IssuerID string // Emisor; cada emisor tiene su propia cadena de atestación
	ClientID string
	Series   string // Serie (ej: "FACT", "RECT", "SIMP")
	Number   string // Número dentro de la serie
	Type     string // ver InvoiceType*

	IssueDate     time.Time
	OperationDate *time.Time

	Concept     string
	Description string

	TaxableBase       decimal.Decimal
	TaxRate           decimal.Decimal // porcentaje (21 = 21%)
	TaxAmount         decimal.Decimal
	WithholdingRate   decimal.Decimal // porcentaje, cero si no aplica
	WithholdingAmount decimal.Decimal
	TotalAmount       decimal.Decimal

	Status string

	CorrectiveReason  string  // obligatorio en rectificativas
	OriginalInvoiceID *string // factura rectificada
	SummaryPeriod     string  // obligatorio en recapitulativas

	DueDate       *time.Time
	PaymentMethod string

	// Campos de atestación: se escriben una única vez al emitir.
	PreviousFingerprint string
	Fingerprint         string
	AttestationID       string
	QRPayload           string
	CanonicalXML        string // XML firmado (o sin firmar en modo de pruebas)
	SignatureBlock      string // nodo ds:Signature tal como quedó en el documento
	Signed              bool
	SignedAt            *time.Time
	ChainSeq            int64

	SubmissionStatus string // espejo del último envío al servicio externo

	IsDeleted bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDraft indica si la factura todavía admite cambios de contenido.
func (i *Invoice) IsDraft() bool { return i.Status == InvoiceStatusDraft }

// IsAttested indica si la factura ya forma parte de una cadena.
func (i *Invoice) IsAttested() bool { return i.Fingerprint != "" }
