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

var (
	_ repository.AttestationRepository = (*AttestationRepo)(nil)
	_ repository.ChainRepository       = (*ChainRepo)(nil)
)

// AttestationRepo registros encadenados. La tabla rechaza UPDATE y DELETE por trigger.
type AttestationRepo struct {
	q Querier
}

// NewAttestationRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAttestationRepository(q Querier) *AttestationRepo {
	return &AttestationRepo{q: q}
}

const recordColumns = `
	id, issuer_id, invoice_id, seq, kind, previous_fingerprint, fingerprint,
	reference_fingerprint, attestation_id, signed_xml, signed, signed_at, created_at`

func scanRecord(row rowScanner) (*entity.AttestationRecord, error) {
	var r entity.AttestationRecord
	err := row.Scan(&r.ID, &r.IssuerID, &r.InvoiceID, &r.Seq, &r.Kind, &r.PreviousFingerprint,
		&r.Fingerprint, &r.ReferenceFingerprint, &r.AttestationID, &r.SignedXML, &r.Signed,
		&r.SignedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Append inserta un eslabón. Dos eslabones con la misma huella anterior en una cadena
// son una bifurcación y se rechazan como ChainIntegrityError.
func (r *AttestationRepo) Append(ctx context.Context, rec *entity.AttestationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `INSERT INTO attestation_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.q.Exec(ctx, query,
		rec.ID, rec.IssuerID, rec.InvoiceID, rec.Seq, rec.Kind, rec.PreviousFingerprint,
		rec.Fingerprint, rec.ReferenceFingerprint, rec.AttestationID, rec.SignedXML, rec.Signed,
		utcPtr(rec.SignedAt), rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			switch constraintName(err) {
			case "attestation_records_issuer_id_previous_fingerprint_key", "attestation_records_issuer_id_seq_key":
				return domain.NewChainIntegrityError("CHAIN001",
					fmt.Sprintf("bifurcación en la cadena del emisor %s (seq %d)", rec.IssuerID, rec.Seq))
			}
			return fmt.Errorf("%w: registro de atestación duplicado: %v", domain.ErrConflict, err)
		}
		return fmt.Errorf("insert attestation record: %w", err)
	}
	return nil
}

// ListByIssuer cadena completa ordenada por seq.
func (r *AttestationRepo) ListByIssuer(ctx context.Context, issuerID string) ([]*entity.AttestationRecord, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+recordColumns+` FROM attestation_records WHERE issuer_id = $1 ORDER BY seq`, issuerID)
	if err != nil {
		return nil, fmt.Errorf("list attestation records: %w", err)
	}
	defer rows.Close()
	var list []*entity.AttestationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attestation record: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// GetByInvoice (nil, nil) si la factura no tiene registro de ese tipo.
func (r *AttestationRepo) GetByInvoice(ctx context.Context, invoiceID, kind string) (*entity.AttestationRecord, error) {
	rec, err := scanRecord(r.q.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM attestation_records WHERE invoice_id = $1 AND kind = $2`, invoiceID, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attestation record: %w", err)
	}
	return rec, nil
}

// ChainRepo cabeceras de cadena.
type ChainRepo struct {
	q Querier
}

// NewChainRepository construye el adaptador. LockHead solo tiene sentido dentro de una tx.
func NewChainRepository(q Querier) *ChainRepo {
	return &ChainRepo{q: q}
}

// LockHead crea la cabecera si no existe y la bloquea con FOR UPDATE.
func (r *ChainRepo) LockHead(ctx context.Context, issuerID string) (*entity.ChainHead, error) {
	_, err := r.q.Exec(ctx,
		`INSERT INTO attestation_chains (issuer_id, last_seq, last_fingerprint, updated_at)
		 VALUES ($1, 0, $2, now()) ON CONFLICT (issuer_id) DO NOTHING`,
		issuerID, entity.GenesisFingerprint)
	if err != nil {
		return nil, fmt.Errorf("init chain head: %w", err)
	}
	var h entity.ChainHead
	err = r.q.QueryRow(ctx,
		`SELECT issuer_id, last_seq, last_fingerprint, updated_at
		 FROM attestation_chains WHERE issuer_id = $1 FOR UPDATE`, issuerID,
	).Scan(&h.IssuerID, &h.LastSeq, &h.LastFingerprint, &h.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock chain head: %w", err)
	}
	return &h, nil
}

// Advance mueve la cabecera. Solo avanza si seq es exactamente el siguiente.
func (r *ChainRepo) Advance(ctx context.Context, head *entity.ChainHead) error {
	if head.UpdatedAt.IsZero() {
		head.UpdatedAt = time.Now().UTC()
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE attestation_chains SET last_seq = $2, last_fingerprint = $3, updated_at = $4
		 WHERE issuer_id = $1 AND last_seq = $2 - 1`,
		head.IssuerID, head.LastSeq, head.LastFingerprint, head.UpdatedAt)
	if err != nil {
		return fmt.Errorf("advance chain head: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewChainIntegrityError("CHAIN002",
			fmt.Sprintf("la cabecera de la cadena %s no está en seq %d", head.IssuerID, head.LastSeq-1))
	}
	return nil
}

// GetHead lectura sin bloqueo. Devuelve una cabecera génesis si la cadena está vacía.
func (r *ChainRepo) GetHead(ctx context.Context, issuerID string) (*entity.ChainHead, error) {
	var h entity.ChainHead
	err := r.q.QueryRow(ctx,
		`SELECT issuer_id, last_seq, last_fingerprint, updated_at FROM attestation_chains WHERE issuer_id = $1`,
		issuerID,
	).Scan(&h.IssuerID, &h.LastSeq, &h.LastFingerprint, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.NewChainHead(issuerID), nil
		}
		return nil, fmt.Errorf("get chain head: %w", err)
	}
	return &h, nil
}
