package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
	"github.com/jhoicas/facturae-api/pkg/jwt"
)

// MinPasswordLength longitud mínima de contraseña.
const MinPasswordLength = 8

// JWTConfig configuración para generación de tokens.
type JWTConfig struct {
	Secret     string
	ExpMinutes int
	Issuer     string
}

// AuthUseCase casos de uso de autenticación: alta de usuarios y login.
type AuthUseCase struct {
	users   repository.UserRepository
	issuers repository.IssuerRepository
	jwtCfg  JWTConfig
	cost    int
}

// NewAuthUseCase construye el caso de uso de auth.
func NewAuthUseCase(users repository.UserRepository, issuers repository.IssuerRepository, jwtCfg JWTConfig) *AuthUseCase {
	return &AuthUseCase{users: users, issuers: issuers, jwtCfg: jwtCfg, cost: bcrypt.DefaultCost}
}

// SetCost coste de bcrypt; los tests usan bcrypt.MinCost.
func (uc *AuthUseCase) SetCost(cost int) { uc.cost = cost }

// RegisterUser crea un usuario del emisor: hashea password con bcrypt y persiste.
// Devuelve ErrDuplicate si el email ya existe y ErrNotFound si el emisor no existe.
func (uc *AuthUseCase) RegisterUser(ctx context.Context, issuerID string, in dto.RegisterUserRequest) (*dto.UserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, domain.NewValidationError("VAL001", "email no válido")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, domain.NewValidationError("VAL002", fmt.Sprintf("la contraseña debe tener al menos %d caracteres", MinPasswordLength))
	}
	if !entity.ValidRole(in.Role) {
		return nil, domain.NewValidationError("VAL003", fmt.Sprintf("rol desconocido: %q", in.Role))
	}

	issuer, err := uc.issuers.GetByID(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	if issuer == nil {
		return nil, fmt.Errorf("%w: emisor %s", domain.ErrNotFound, issuerID)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), uc.cost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email
	}
	user := &entity.User{
		ID:           uuid.New().String(),
		IssuerID:     issuer.ID,
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		Role:         in.Role,
		Status:       entity.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

// Login verifica email/password y genera un JWT con el emisor y el rol del usuario.
// Email desconocido y contraseña incorrecta devuelven el mismo ErrUnauthorized.
func (uc *AuthUseCase) Login(ctx context.Context, in dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := uc.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	if user.Status != entity.UserStatusActive {
		return nil, domain.ErrForbidden
	}
	token, err := jwt.Generate(uc.jwtCfg.Secret, user.ID, user.IssuerID, user.Role, uc.jwtCfg.Issuer, uc.jwtCfg.ExpMinutes)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		Token:     token,
		ExpiresIn: uc.jwtCfg.ExpMinutes * 60,
		User:      *toUserResponse(user),
	}, nil
}

// ListUsers usuarios del emisor.
func (uc *AuthUseCase) ListUsers(ctx context.Context, issuerID string, page dto.PageRequest) ([]*dto.UserResponse, error) {
	page.DefaultPage()
	list, err := uc.users.ListByIssuer(ctx, issuerID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.UserResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toUserResponse(u))
	}
	return out, nil
}

func toUserResponse(u *entity.User) *dto.UserResponse {
	if u == nil {
		return nil
	}
	return &dto.UserResponse{
		ID:        u.ID,
		IssuerID:  u.IssuerID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}
