package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `
	id, issuer_id, client_id, series, number, type, issue_date, operation_date,
	concept, description, taxable_base, tax_rate, tax_amount, withholding_rate,
	withholding_amount, total_amount, status, corrective_reason, original_invoice_id,
	summary_period, due_date, payment_method, previous_fingerprint, fingerprint,
	attestation_id, qr_payload, canonical_xml, signature_block, signed, signed_at,
	chain_seq, submission_status, is_deleted, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var clientID, prevFP, fp, attID, qrPayload, canonical, sigBlock *string
	var chainSeq *int64
	err := row.Scan(
		&inv.ID, &inv.IssuerID, &clientID, &inv.Series, &inv.Number, &inv.Type,
		&inv.IssueDate, &inv.OperationDate, &inv.Concept, &inv.Description,
		&inv.TaxableBase, &inv.TaxRate, &inv.TaxAmount, &inv.WithholdingRate,
		&inv.WithholdingAmount, &inv.TotalAmount, &inv.Status, &inv.CorrectiveReason,
		&inv.OriginalInvoiceID, &inv.SummaryPeriod, &inv.DueDate, &inv.PaymentMethod,
		&prevFP, &fp, &attID, &qrPayload, &canonical, &sigBlock, &inv.Signed, &inv.SignedAt,
		&chainSeq, &inv.SubmissionStatus, &inv.IsDeleted, &inv.DeletedAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.ClientID = derefStr(clientID)
	inv.PreviousFingerprint = derefStr(prevFP)
	inv.Fingerprint = derefStr(fp)
	inv.AttestationID = derefStr(attID)
	inv.QRPayload = derefStr(qrPayload)
	inv.CanonicalXML = derefStr(canonical)
	inv.SignatureBlock = derefStr(sigBlock)
	inv.ChainSeq = derefInt64(chainSeq)
	return &inv, nil
}

// Create persiste la cabecera de un borrador.
func (r *InvoiceRepo) Create(ctx context.Context, invoice *entity.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoices (id, issuer_id, client_id, series, number, type, issue_date, operation_date,
			concept, description, taxable_base, tax_rate, tax_amount, withholding_rate, withholding_amount,
			total_amount, status, corrective_reason, original_invoice_id, summary_period, due_date,
			payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`
	_, err := r.q.Exec(ctx, query,
		invoice.ID, invoice.IssuerID, nullIfEmpty(invoice.ClientID), invoice.Series, invoice.Number,
		invoice.Type, invoice.IssueDate.UTC(), utcPtr(invoice.OperationDate),
		invoice.Concept, invoice.Description, invoice.TaxableBase, invoice.TaxRate, invoice.TaxAmount,
		invoice.WithholdingRate, invoice.WithholdingAmount, invoice.TotalAmount, invoice.Status,
		invoice.CorrectiveReason, invoice.OriginalInvoiceID, invoice.SummaryPeriod, utcPtr(invoice.DueDate),
		invoice.PaymentMethod, invoice.CreatedAt, invoice.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: la serie y número %s-%s ya existen", domain.ErrConflict, invoice.Series, invoice.Number)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// CreateDetail persiste una línea de detalle.
func (r *InvoiceRepo) CreateDetail(ctx context.Context, detail *entity.InvoiceDetail) error {
	if detail.ID == "" {
		detail.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoice_details (id, invoice_id, position, description, quantity, unit_price, tax_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, query,
		detail.ID, detail.InvoiceID, detail.Position, detail.Description,
		detail.Quantity, detail.UnitPrice, detail.TaxRate,
	)
	if err != nil {
		return fmt.Errorf("insert invoice detail: %w", err)
	}
	return nil
}

// ReplaceDetails borra y vuelve a insertar las líneas del borrador.
func (r *InvoiceRepo) ReplaceDetails(ctx context.Context, invoiceID string, details []*entity.InvoiceDetail) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM invoice_details WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("delete invoice details: %w", err)
	}
	for _, d := range details {
		d.InvoiceID = invoiceID
		if err := r.CreateDetail(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// UpdateDraft actualiza el contenido. La condición status = 'borrador' impide tocar
// facturas ya emitidas.
func (r *InvoiceRepo) UpdateDraft(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		UPDATE invoices
		SET client_id = $2, series = $3, number = $4, type = $5, issue_date = $6, operation_date = $7,
		    concept = $8, description = $9, taxable_base = $10, tax_rate = $11, tax_amount = $12,
		    withholding_rate = $13, withholding_amount = $14, total_amount = $15,
		    corrective_reason = $16, original_invoice_id = $17, summary_period = $18,
		    due_date = $19, payment_method = $20, updated_at = $21
		WHERE id = $1 AND status = 'borrador' AND NOT is_deleted`
	tag, err := r.q.Exec(ctx, query,
		invoice.ID, nullIfEmpty(invoice.ClientID), invoice.Series, invoice.Number, invoice.Type,
		invoice.IssueDate.UTC(), utcPtr(invoice.OperationDate), invoice.Concept, invoice.Description,
		invoice.TaxableBase, invoice.TaxRate, invoice.TaxAmount, invoice.WithholdingRate,
		invoice.WithholdingAmount, invoice.TotalAmount, invoice.CorrectiveReason,
		invoice.OriginalInvoiceID, invoice.SummaryPeriod, utcPtr(invoice.DueDate),
		invoice.PaymentMethod, invoice.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: la serie y número %s-%s ya existen", domain.ErrConflict, invoice.Series, invoice.Number)
		}
		return fmt.Errorf("update draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: la factura %s ya no es un borrador", domain.ErrConflict, invoice.ID)
	}
	return nil
}

// GetByID obtiene una factura completa por ID. (nil, nil) si no existe.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// GetDetailsByInvoiceID obtiene todas las líneas de una factura.
func (r *InvoiceRepo) GetDetailsByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.InvoiceDetail, error) {
	query := `
		SELECT id, invoice_id, position, description, quantity, unit_price, tax_rate
		FROM invoice_details WHERE invoice_id = $1 ORDER BY position, id`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice details: %w", err)
	}
	defer rows.Close()
	var list []*entity.InvoiceDetail
	for rows.Next() {
		var d entity.InvoiceDetail
		if err := rows.Scan(&d.ID, &d.InvoiceID, &d.Position, &d.Description, &d.Quantity, &d.UnitPrice, &d.TaxRate); err != nil {
			return nil, fmt.Errorf("scan detail: %w", err)
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}

// ListByIssuer lista las facturas no descartadas del emisor, más recientes primero.
func (r *InvoiceRepo) ListByIssuer(ctx context.Context, issuerID string, limit, offset int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices WHERE issuer_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, issuerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	var list []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// MarkIssued escribe los campos de atestación y el cambio de estado en una sola sentencia.
func (r *InvoiceRepo) MarkIssued(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		UPDATE invoices
		SET status = 'emitida', previous_fingerprint = $2, fingerprint = $3, attestation_id = $4,
		    qr_payload = $5, canonical_xml = $6, signature_block = $7, signed = $8, signed_at = $9,
		    chain_seq = $10, submission_status = $11, updated_at = $12
		WHERE id = $1 AND status = 'borrador' AND NOT is_deleted AND fingerprint IS NULL`
	tag, err := r.q.Exec(ctx, query,
		invoice.ID, invoice.PreviousFingerprint, invoice.Fingerprint, invoice.AttestationID,
		invoice.QRPayload, invoice.CanonicalXML, nullIfEmpty(invoice.SignatureBlock), invoice.Signed,
		utcPtr(invoice.SignedAt), invoice.ChainSeq, invoice.SubmissionStatus, invoice.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("mark invoice issued: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: la factura %s no está en borrador", domain.ErrConflict, invoice.ID)
	}
	return nil
}

// UpdateStatus transición condicional de estado.
func (r *InvoiceRepo) UpdateStatus(ctx context.Context, id, from, to string, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE invoices SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2 AND NOT is_deleted`,
		id, from, to, at)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: la factura %s no está en estado %s", domain.ErrConflict, id, from)
	}
	return nil
}

// UpdateSubmissionStatus refleja el estado del último envío en la factura.
func (r *InvoiceRepo) UpdateSubmissionStatus(ctx context.Context, id, status string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE invoices SET submission_status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	return nil
}

// SoftDelete descarta un borrador.
func (r *InvoiceRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE invoices SET is_deleted = true, deleted_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'borrador' AND NOT is_deleted`, id, at)
	if err != nil {
		return fmt.Errorf("soft delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: solo se pueden descartar borradores", domain.ErrConflict)
	}
	return nil
}
