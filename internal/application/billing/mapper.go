package billing

import (
	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

func toInvoiceResponse(inv *entity.Invoice, details []*entity.InvoiceDetail) *dto.InvoiceResponse {
	out := &dto.InvoiceResponse{
		ID:                  inv.ID,
		IssuerID:            inv.IssuerID,
		ClientID:            inv.ClientID,
		Series:              inv.Series,
		Number:              inv.Number,
		Type:                inv.Type,
		Status:              inv.Status,
		IssueDate:           inv.IssueDate,
		OperationDate:       inv.OperationDate,
		Concept:             inv.Concept,
		TaxableBase:         inv.TaxableBase,
		TaxRate:             inv.TaxRate,
		TaxAmount:           inv.TaxAmount,
		WithholdingRate:     inv.WithholdingRate,
		WithholdingAmount:   inv.WithholdingAmount,
		TotalAmount:         inv.TotalAmount,
		CorrectiveReason:    inv.CorrectiveReason,
		OriginalInvoiceID:   inv.OriginalInvoiceID,
		SummaryPeriod:       inv.SummaryPeriod,
		DueDate:             inv.DueDate,
		PaymentMethod:       inv.PaymentMethod,
		PreviousFingerprint: inv.PreviousFingerprint,
		Fingerprint:         inv.Fingerprint,
		AttestationID:       inv.AttestationID,
		QRPayload:           inv.QRPayload,
		Signed:              inv.Signed,
		SignedAt:            inv.SignedAt,
		ChainSeq:            inv.ChainSeq,
		SubmissionStatus:    inv.SubmissionStatus,
	}
	for _, d := range details {
		out.Details = append(out.Details, dto.InvoiceDetailResponse{
			Position:    d.Position,
			Description: d.Description,
			Quantity:    d.Quantity,
			UnitPrice:   d.UnitPrice,
			TaxRate:     d.TaxRate,
			Subtotal:    d.Subtotal(),
			Tax:         d.Tax(),
			Total:       d.Total(),
		})
	}
	return out
}

func toSubmissionResponse(s *entity.Submission) *dto.SubmissionResponse {
	if s == nil {
		return nil
	}
	return &dto.SubmissionResponse{
		ID:            s.ID,
		Operation:     s.Operation,
		AttestationID: s.AttestationID,
		Status:        s.Status,
		Attempts:      s.Attempts,
		NextAttemptAt: s.NextAttemptAt,
		LastErrorCode: s.LastErrorCode,
		ReferenceID:   s.ReferenceID,
	}
}

func toClientResponse(c *entity.Client) *dto.ClientResponse {
	return &dto.ClientResponse{
		ID:         c.ID,
		IssuerID:   c.IssuerID,
		Name:       c.Name,
		TaxID:      c.TaxID,
		Address:    c.Address,
		PostalCode: c.PostalCode,
		City:       c.City,
		Country:    c.Country,
		Email:      c.Email,
	}
}
