package billing

import (
	"context"

	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción con todos los repositorios.
type TxRunner interface {
	Run(ctx context.Context, fn func(repos repository.Repos) error) error
	// RunInChain serializa fn con cualquier otra operación sobre la cadena del emisor.
	// head es la cabecera bloqueada; si fn devuelve error no se aplica nada.
	RunInChain(ctx context.Context, issuerID string, fn func(repos repository.Repos, head *entity.ChainHead) error) error
}

// GatewayRequest documento enviado al servicio externo. AttestationID es la clave de
// idempotencia: reenviar el mismo id no genera un alta nueva.
type GatewayRequest struct {
	AttestationID string
	IssuerTaxID   string
	Document      []byte
}

// GatewayResult respuesta del servicio externo.
type GatewayResult struct {
	Accepted    bool
	ReferenceID string
	Status      string
	Code        string
	Message     string
}

// Gateway servicio externo de atestación. Los errores transitorios se devuelven como
// CommunicationError, RateLimitError o MaintenanceError.
type Gateway interface {
	Submit(ctx context.Context, req GatewayRequest) (*GatewayResult, error)
	CheckStatus(ctx context.Context, attestationID string) (*GatewayResult, error)
	Cancel(ctx context.Context, req GatewayRequest) (*GatewayResult, error)
}

// SubmissionQueue cola de envíos pendientes. Enqueue se llama después del commit.
type SubmissionQueue interface {
	Enqueue(ctx context.Context, submissionID string) error
}

// Eventos notificados.
const (
	EventInvoiceIssued      = "invoice.issued"
	EventInvoiceCancelled   = "invoice.cancelled"
	EventSubmissionAccepted = "submission.accepted"
	EventSubmissionRejected = "submission.rejected"
	EventSubmissionFailed   = "submission.failed"
)

// Notification resultado de emisión o envío que se comunica fuera del núcleo.
type Notification struct {
	Event         string
	IssuerID      string
	InvoiceID     string
	AttestationID string
	Detail        string
}

// Notifier avisa de resultados. Ningún flujo depende de que tenga éxito.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// QREncoder genera la imagen del QR de verificación. ValidatePayload indica si el
// contenido es un enlace de verificación absoluto con id y fp.
type QREncoder interface {
	Encode(payload string) ([]byte, error)
	ValidatePayload(payload string) bool
}

// DeadLetterSink recibe los envíos que agotaron sus intentos para revisión manual.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, sub *entity.Submission, reason string) error
}

// InvoicePrint datos de la representación impresa de una factura emitida.
type InvoicePrint struct {
	Invoice *entity.Invoice
	Issuer  *entity.Issuer
	Client  *entity.Client // nil si la factura simplificada no identifica destinatario
	Details []*entity.InvoiceDetail
}

// InvoicePDFGenerator genera el PDF de la factura con su huella y el QR de verificación.
type InvoicePDFGenerator interface {
	GenerateInvoicePDF(ctx context.Context, p InvoicePrint) ([]byte, error)
}
