package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/facturae-api/internal/application/auth"
	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/infrastructure/memory"
	"github.com/jhoicas/facturae-api/pkg/jwt"
)

const secret = "secreto-de-pruebas"

func setup(t *testing.T) (*auth.AuthUseCase, string) {
	t.Helper()
	repos := memory.NewStore().Repos()
	issuer, err := billing.NewPartyUseCase(repos.Issuers, repos.Clients).
		RegisterIssuer(context.Background(), dto.RegisterIssuerRequest{Name: "Emisor SL", TaxID: "B12345674"})
	require.NoError(t, err)
	uc := auth.NewAuthUseCase(repos.Users, repos.Issuers, auth.JWTConfig{Secret: secret, ExpMinutes: 30, Issuer: "facturae-api"})
	uc.SetCost(bcrypt.MinCost)
	return uc, issuer.ID
}

func TestRegisterUser_YLogin(t *testing.T) {
	uc, issuerID := setup(t)
	ctx := context.Background()

	user, err := uc.RegisterUser(ctx, issuerID, dto.RegisterUserRequest{
		Email: " Ana@Example.com ", Password: "clave-segura", Role: entity.RoleBilling,
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, entity.UserStatusActive, user.Status)

	out, err := uc.Login(ctx, dto.LoginRequest{Email: "ana@example.com", Password: "clave-segura"})
	require.NoError(t, err)
	assert.Equal(t, 1800, out.ExpiresIn)

	claims, err := jwt.Parse(secret, out.Token)
	require.NoError(t, err)
	assert.Equal(t, issuerID, claims.IssuerID)
	assert.Equal(t, entity.RoleBilling, claims.Role)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestLogin_CredencialesInvalidas(t *testing.T) {
	uc, issuerID := setup(t)
	ctx := context.Background()
	_, err := uc.RegisterUser(ctx, issuerID, dto.RegisterUserRequest{Email: "ana@example.com", Password: "clave-segura", Role: entity.RoleAdmin})
	require.NoError(t, err)

	_, err = uc.Login(ctx, dto.LoginRequest{Email: "ana@example.com", Password: "otra-clave"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = uc.Login(ctx, dto.LoginRequest{Email: "nadie@example.com", Password: "clave-segura"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRegisterUser_Validaciones(t *testing.T) {
	uc, issuerID := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   dto.RegisterUserRequest
		code string
	}{
		{"email", dto.RegisterUserRequest{Email: "no-es-email", Password: "clave-segura", Role: entity.RoleAdmin}, "VAL001"},
		{"password corta", dto.RegisterUserRequest{Email: "a@example.com", Password: "corta", Role: entity.RoleAdmin}, "VAL002"},
		{"rol", dto.RegisterUserRequest{Email: "a@example.com", Password: "clave-segura", Role: "root"}, "VAL003"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.RegisterUser(ctx, issuerID, tc.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, tc.code, domain.CodeOf(err))
		})
	}
}

func TestRegisterUser_EmailDuplicadoYEmisorInexistente(t *testing.T) {
	uc, issuerID := setup(t)
	ctx := context.Background()
	in := dto.RegisterUserRequest{Email: "ana@example.com", Password: "clave-segura", Role: entity.RoleAdmin}

	_, err := uc.RegisterUser(ctx, issuerID, in)
	require.NoError(t, err)
	_, err = uc.RegisterUser(ctx, issuerID, in)
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	in.Email = "otro@example.com"
	_, err = uc.RegisterUser(ctx, "00000000-0000-0000-0000-000000000000", in)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListUsers_PorEmisor(t *testing.T) {
	uc, issuerID := setup(t)
	ctx := context.Background()
	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := uc.RegisterUser(ctx, issuerID, dto.RegisterUserRequest{Email: email, Password: "clave-segura", Role: entity.RoleAuditor})
		require.NoError(t, err)
	}
	list, err := uc.ListUsers(ctx, issuerID, dto.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	other, err := uc.ListUsers(ctx, "otro-emisor", dto.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, other)
}
