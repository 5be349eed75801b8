package entity

import "time"

// Estados del envío al servicio externo de atestación. Son independientes del estado
// de la factura: un envío fallido nunca revierte la emisión local.
const (
	SubmissionStatusPending  = "pending"
	SubmissionStatusAccepted = "accepted"
	SubmissionStatusRejected = "rejected"
	SubmissionStatusFailed   = "failed"
)

// Operaciones enviadas al servicio externo.
const (
	SubmissionOpSubmit = "submit"
	SubmissionOpCancel = "cancel"
)

// Submission seguimiento de un envío (alta o anulación). AttestationID actúa como
// clave de idempotencia.
type Submission struct {
	ID            string
	IssuerID      string
	InvoiceID     string
	RecordID      string
	Operation     string
	AttestationID string
	Status        string
	Attempts      int
	NextAttemptAt *time.Time
	LastError     string
	LastErrorCode string
	ReferenceID   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsFinal indica si el envío ya no se reintentará.
func (s *Submission) IsFinal() bool {
	return s.Status == SubmissionStatusAccepted || s.Status == SubmissionStatusRejected ||
		s.Status == SubmissionStatusFailed
}
