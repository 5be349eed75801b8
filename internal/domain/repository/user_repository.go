package repository

import (
	"context"

	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

// UserRepository define el puerto de persistencia para User (DIP).
type UserRepository interface {
	// Create falla con domain.ErrDuplicate si el email ya existe.
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	// GetByEmail (nil, nil) si no existe. El email se compara en minúsculas.
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	ListByIssuer(ctx context.Context, issuerID string, limit, offset int) ([]*entity.User, error)
}
