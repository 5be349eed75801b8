package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateClientRequest body para POST /api/clients.
type CreateClientRequest struct {
	Name       string `json:"name"`
	TaxID      string `json:"tax_id"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	Email      string `json:"email,omitempty"`
}

// ClientResponse cliente en respuestas.
type ClientResponse struct {
	ID         string `json:"id"`
	IssuerID   string `json:"issuer_id"`
	Name       string `json:"name"`
	TaxID      string `json:"tax_id,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	Email      string `json:"email,omitempty"`
}

// RegisterIssuerRequest alta de un emisor (una cadena de atestación por emisor).
type RegisterIssuerRequest struct {
	Name       string `json:"name"`
	TaxID      string `json:"tax_id"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
}

// IssuerResponse emisor en respuestas.
type IssuerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
}

// InvoiceRequest body para POST /api/invoices y PUT /api/invoices/:id.
// Si hay líneas, la base imponible es la suma de sus subtotales; si no, TaxableBase es
// obligatoria. Cuotas y total los calcula siempre el servidor.
type InvoiceRequest struct {
	ClientID          string               `json:"client_id"`
	Series            string               `json:"series"`
	Number            string               `json:"number"`
	Type              string               `json:"type"` // ordinaria|rectificativa|simplificada|recapitulativa
	IssueDate         *time.Time           `json:"issue_date,omitempty"`
	OperationDate     *time.Time           `json:"operation_date,omitempty"`
	Concept           string               `json:"concept,omitempty"`
	Description       string               `json:"description,omitempty"`
	TaxableBase       *decimal.Decimal     `json:"taxable_base,omitempty"`
	TaxRate           decimal.Decimal      `json:"tax_rate"`
	WithholdingRate   decimal.Decimal      `json:"withholding_rate"`
	CorrectiveReason  string               `json:"corrective_reason,omitempty"`
	OriginalInvoiceID *string              `json:"original_invoice_id,omitempty"`
	SummaryPeriod     string               `json:"summary_period,omitempty"`
	DueDate           *time.Time           `json:"due_date,omitempty"`
	PaymentMethod     string               `json:"payment_method,omitempty"`
	Lines             []InvoiceLineRequest `json:"lines,omitempty"`
}

// InvoiceLineRequest línea de factura.
type InvoiceLineRequest struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

// InvoiceResponse factura con detalle para GET /api/invoices/:id.
type InvoiceResponse struct {
	ID                  string                  `json:"id"`
	IssuerID            string                  `json:"issuer_id"`
	ClientID            string                  `json:"client_id"`
	Series              string                  `json:"series"`
	Number              string                  `json:"number"`
	Type                string                  `json:"type"`
	Status              string                  `json:"status"`
	IssueDate           time.Time               `json:"issue_date"`
	OperationDate       *time.Time              `json:"operation_date,omitempty"`
	Concept             string                  `json:"concept,omitempty"`
	TaxableBase         decimal.Decimal         `json:"taxable_base"`
	TaxRate             decimal.Decimal         `json:"tax_rate"`
	TaxAmount           decimal.Decimal         `json:"tax_amount"`
	WithholdingRate     decimal.Decimal         `json:"withholding_rate"`
	WithholdingAmount   decimal.Decimal         `json:"withholding_amount"`
	TotalAmount         decimal.Decimal         `json:"total_amount"`
	CorrectiveReason    string                  `json:"corrective_reason,omitempty"`
	OriginalInvoiceID   *string                 `json:"original_invoice_id,omitempty"`
	SummaryPeriod       string                  `json:"summary_period,omitempty"`
	DueDate             *time.Time              `json:"due_date,omitempty"`
	PaymentMethod       string                  `json:"payment_method,omitempty"`
	PreviousFingerprint string                  `json:"previous_fingerprint,omitempty"`
	Fingerprint         string                  `json:"fingerprint,omitempty"`
	AttestationID       string                  `json:"attestation_id,omitempty"`
	QRPayload           string                  `json:"qr_payload,omitempty"`
	Signed              bool                    `json:"signed"`
	SignedAt            *time.Time              `json:"signed_at,omitempty"`
	ChainSeq            int64                   `json:"chain_seq,omitempty"`
	SubmissionStatus    string                  `json:"submission_status,omitempty"`
	Details             []InvoiceDetailResponse `json:"details,omitempty"`
}

// InvoiceDetailResponse línea de detalle en la respuesta.
type InvoiceDetailResponse struct {
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// SubmissionResponse estado del envío al servicio externo.
type SubmissionResponse struct {
	ID            string     `json:"id"`
	Operation     string     `json:"operation"`
	AttestationID string     `json:"attestation_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastErrorCode string     `json:"last_error_code,omitempty"`
	ReferenceID   string     `json:"reference_id,omitempty"`
}

// AttestationResponse respuesta de emisión o anulación. La emisión local es definitiva
// aunque el envío siga pendiente.
type AttestationResponse struct {
	Invoice    InvoiceResponse     `json:"invoice"`
	Submission *SubmissionResponse `json:"submission,omitempty"`
	Message    string              `json:"message"`
}

// VerificationResponse resultado de GET /api/invoices/:id/verify.
type VerificationResponse struct {
	InvoiceID        string `json:"invoice_id"`
	AttestationID    string `json:"attestation_id"`
	FingerprintValid bool   `json:"fingerprint_valid"`
	Signed           bool   `json:"signed"`
	SignatureValid   bool   `json:"signature_valid"`
	Valid            bool   `json:"valid"`
}

// ChainViolation problema detectado en la cadena.
type ChainViolation struct {
	Seq     int64  `json:"seq"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChainReportResponse resultado de GET /api/chain/verify.
type ChainReportResponse struct {
	IssuerID        string           `json:"issuer_id"`
	Records         int              `json:"records"`
	LastSeq         int64            `json:"last_seq"`
	LastFingerprint string           `json:"last_fingerprint"`
	Valid           bool             `json:"valid"`
	Violations      []ChainViolation `json:"violations,omitempty"`
}

// CertificateResponse resultado de GET /api/certificate.
type CertificateResponse struct {
	Unsigned        bool      `json:"unsigned"`
	Subject         string    `json:"subject,omitempty"`
	Issuer          string    `json:"issuer,omitempty"`
	SerialNumber    string    `json:"serial_number,omitempty"`
	NotBefore       time.Time `json:"not_before,omitempty"`
	NotAfter        time.Time `json:"not_after,omitempty"`
	CurrentlyValid  bool      `json:"currently_valid"`
	ExpiringSoon    bool      `json:"expiring_soon"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
}
