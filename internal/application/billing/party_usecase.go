package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
	"github.com/jhoicas/facturae-api/pkg/fiscal"
)

// PartyUseCase alta y consulta de emisores y clientes.
type PartyUseCase struct {
	issuers repository.IssuerRepository
	clients repository.ClientRepository
}

// NewPartyUseCase construye el caso de uso.
func NewPartyUseCase(issuers repository.IssuerRepository, clients repository.ClientRepository) *PartyUseCase {
	return &PartyUseCase{issuers: issuers, clients: clients}
}

// RegisterIssuer da de alta un emisor. El NIF debe ser válido y único.
func (uc *PartyUseCase) RegisterIssuer(ctx context.Context, in dto.RegisterIssuerRequest) (*dto.IssuerResponse, error) {
	taxID := fiscal.NormalizeTaxID(in.TaxID)
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.NewValidationError("VAL001", "el nombre del emisor es obligatorio")
	}
	if _, err := fiscal.ValidateTaxID(taxID); err != nil {
		return nil, domain.NewValidationError("VAL002", fmt.Sprintf("NIF del emisor no válido: %v", err))
	}
	now := time.Now().UTC()
	issuer := &entity.Issuer{
		ID:         uuid.New().String(),
		Name:       strings.TrimSpace(in.Name),
		TaxID:      taxID,
		Address:    in.Address,
		PostalCode: in.PostalCode,
		City:       in.City,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.issuers.Create(ctx, issuer); err != nil {
		return nil, err
	}
	return &dto.IssuerResponse{ID: issuer.ID, Name: issuer.Name, TaxID: issuer.TaxID}, nil
}

// GetIssuer devuelve el emisor o domain.ErrNotFound.
func (uc *PartyUseCase) GetIssuer(ctx context.Context, issuerID string) (*dto.IssuerResponse, error) {
	issuer, err := uc.issuers.GetByID(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	if issuer == nil {
		return nil, domain.ErrNotFound
	}
	return &dto.IssuerResponse{ID: issuer.ID, Name: issuer.Name, TaxID: issuer.TaxID}, nil
}

// CreateClient crea un cliente del emisor. El NIF es opcional (clientes de facturas
// simplificadas) pero si se informa debe ser válido y no repetirse.
func (uc *PartyUseCase) CreateClient(ctx context.Context, issuerID string, in dto.CreateClientRequest) (*dto.ClientResponse, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.NewValidationError("VAL001", "el nombre del cliente es obligatorio")
	}
	taxID := fiscal.NormalizeTaxID(in.TaxID)
	if taxID != "" {
		if _, err := fiscal.ValidateTaxID(taxID); err != nil {
			return nil, domain.NewValidationError("VAL002", fmt.Sprintf("NIF del cliente no válido: %v", err))
		}
		existing, err := uc.clients.GetByIssuerAndTaxID(ctx, issuerID, taxID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: ya existe un cliente con NIF %s", domain.ErrDuplicate, taxID)
		}
	}
	country := strings.ToUpper(strings.TrimSpace(in.Country))
	if country == "" {
		country = "ES"
	}
	now := time.Now().UTC()
	client := &entity.Client{
		ID:         uuid.New().String(),
		IssuerID:   issuerID,
		Name:       strings.TrimSpace(in.Name),
		TaxID:      taxID,
		Address:    in.Address,
		PostalCode: in.PostalCode,
		City:       in.City,
		Country:    country,
		Email:      in.Email,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.clients.Create(ctx, client); err != nil {
		return nil, err
	}
	return toClientResponse(client), nil
}

// ListClients lista clientes del emisor.
func (uc *PartyUseCase) ListClients(ctx context.Context, issuerID string, page dto.PageRequest) ([]*dto.ClientResponse, error) {
	page.DefaultPage()
	list, err := uc.clients.ListByIssuer(ctx, issuerID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ClientResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toClientResponse(c))
	}
	return out, nil
}
