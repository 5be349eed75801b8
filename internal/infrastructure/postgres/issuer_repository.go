package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
)

var _ repository.IssuerRepository = (*IssuerRepo)(nil)

// IssuerRepo implementación de IssuerRepository.
type IssuerRepo struct {
	q Querier
}

// NewIssuerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewIssuerRepository(q Querier) *IssuerRepo {
	return &IssuerRepo{q: q}
}

const issuerColumns = `id, name, tax_id, address, postal_code, city, created_at, updated_at`

func scanIssuer(row rowScanner) (*entity.Issuer, error) {
	var i entity.Issuer
	if err := row.Scan(&i.ID, &i.Name, &i.TaxID, &i.Address, &i.PostalCode, &i.City, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

// Create persiste el emisor. El NIF es único.
func (r *IssuerRepo) Create(ctx context.Context, i *entity.Issuer) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	_, err := r.q.Exec(ctx, `INSERT INTO issuers (`+issuerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		i.ID, i.Name, i.TaxID, i.Address, i.PostalCode, i.City, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ya existe un emisor con NIF %s", domain.ErrConflict, i.TaxID)
		}
		return fmt.Errorf("insert issuer: %w", err)
	}
	return nil
}

// GetByID (nil, nil) si no existe.
func (r *IssuerRepo) GetByID(ctx context.Context, id string) (*entity.Issuer, error) {
	i, err := scanIssuer(r.q.QueryRow(ctx, `SELECT `+issuerColumns+` FROM issuers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get issuer: %w", err)
	}
	return i, nil
}

// GetByTaxID (nil, nil) si no existe.
func (r *IssuerRepo) GetByTaxID(ctx context.Context, taxID string) (*entity.Issuer, error) {
	i, err := scanIssuer(r.q.QueryRow(ctx, `SELECT `+issuerColumns+` FROM issuers WHERE tax_id = $1`, taxID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get issuer by tax id: %w", err)
	}
	return i, nil
}
