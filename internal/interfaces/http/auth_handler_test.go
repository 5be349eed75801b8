package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturae-api/internal/application/dto"
	pkgjwt "github.com/jhoicas/facturae-api/pkg/jwt"
)

func (f *apiFixture) login(t *testing.T, email, password string) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(dto.LoginRequest{Email: email, Password: password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestAuthAPI_AltaYLogin(t *testing.T) {
	f := newAPI(t, nil)

	resp, body := f.call(t, http.MethodPost, "/api/users", pkgjwt.RoleAdmin, dto.RegisterUserRequest{
		Email: "ana@example.com", Password: "clave-segura", Role: pkgjwt.RoleBilling,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = f.login(t, "ana@example.com", "clave-segura")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out dto.LoginResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, f.issuerID, out.User.IssuerID)

	// El token del login sirve para operar sobre el emisor.
	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+out.Token)
	list, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, list.StatusCode)
}

func TestAuthAPI_LoginInvalido(t *testing.T) {
	f := newAPI(t, nil)
	resp, _ := f.login(t, "nadie@example.com", "clave-segura")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.login(t, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthAPI_AltaSoloAdmin(t *testing.T) {
	f := newAPI(t, nil)
	resp, _ := f.call(t, http.MethodPost, "/api/users", pkgjwt.RoleBilling, dto.RegisterUserRequest{
		Email: "ana@example.com", Password: "clave-segura", Role: pkgjwt.RoleBilling,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := f.call(t, http.MethodPost, "/api/users", pkgjwt.RoleAdmin, dto.RegisterUserRequest{
		Email: "ana@example.com", Password: "corta", Role: pkgjwt.RoleBilling,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))
}
