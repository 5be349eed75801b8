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

var _ repository.SubmissionRepository = (*SubmissionRepo)(nil)

// SubmissionRepo seguimiento de envíos al servicio externo.
type SubmissionRepo struct {
	q Querier
}

// NewSubmissionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSubmissionRepository(q Querier) *SubmissionRepo {
	return &SubmissionRepo{q: q}
}

const submissionColumns = `
	id, issuer_id, invoice_id, record_id, operation, attestation_id, status, attempts,
	next_attempt_at, last_error, last_error_code, reference_id, created_at, updated_at`

func scanSubmission(row rowScanner) (*entity.Submission, error) {
	var s entity.Submission
	err := row.Scan(&s.ID, &s.IssuerID, &s.InvoiceID, &s.RecordID, &s.Operation, &s.AttestationID,
		&s.Status, &s.Attempts, &s.NextAttemptAt, &s.LastError, &s.LastErrorCode, &s.ReferenceID,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create registra un envío pendiente. El identificador de atestación es único.
func (r *SubmissionRepo) Create(ctx context.Context, s *entity.Submission) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.q.Exec(ctx, `INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.IssuerID, s.InvoiceID, s.RecordID, s.Operation, s.AttestationID, s.Status, s.Attempts,
		utcPtr(s.NextAttemptAt), s.LastError, s.LastErrorCode, s.ReferenceID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ya existe un envío para %s", domain.ErrConflict, s.AttestationID)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// Update guarda el resultado de un intento.
func (r *SubmissionRepo) Update(ctx context.Context, s *entity.Submission) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE submissions
		SET status = $2, attempts = $3, next_attempt_at = $4, last_error = $5,
		    last_error_code = $6, reference_id = $7, updated_at = $8
		WHERE id = $1`,
		s.ID, s.Status, s.Attempts, utcPtr(s.NextAttemptAt), s.LastError, s.LastErrorCode,
		s.ReferenceID, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: envío %s", domain.ErrNotFound, s.ID)
	}
	return nil
}

// GetByID (nil, nil) si no existe.
func (r *SubmissionRepo) GetByID(ctx context.Context, id string) (*entity.Submission, error) {
	s, err := scanSubmission(r.q.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return s, nil
}

// ListDue envíos pendientes con el próximo intento vencido, más antiguos primero.
func (r *SubmissionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Submission, error) {
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions
		WHERE status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY next_attempt_at NULLS FIRST, created_at LIMIT $2`, now.UTC(), limit)
}

// ListByInvoice envíos de una factura en orden de creación.
func (r *SubmissionRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Submission, error) {
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
}

func (r *SubmissionRepo) list(ctx context.Context, query string, args ...any) ([]*entity.Submission, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	var list []*entity.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
