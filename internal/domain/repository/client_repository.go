package repository

import (
	"context"

	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

// ClientRepository define el puerto de persistencia para Client.
type ClientRepository interface {
	Create(ctx context.Context, client *entity.Client) error
	GetByID(ctx context.Context, id string) (*entity.Client, error)
	GetByIssuerAndTaxID(ctx context.Context, issuerID, taxID string) (*entity.Client, error)
	ListByIssuer(ctx context.Context, issuerID string, limit, offset int) ([]*entity.Client, error)
}
