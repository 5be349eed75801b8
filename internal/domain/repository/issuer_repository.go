package repository

import (
	"context"

	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

// IssuerRepository define el puerto de persistencia para Issuer (DIP).
// La implementación vive en infrastructure.
type IssuerRepository interface {
	Create(ctx context.Context, issuer *entity.Issuer) error
	GetByID(ctx context.Context, id string) (*entity.Issuer, error)
	GetByTaxID(ctx context.Context, taxID string) (*entity.Issuer, error)
}
