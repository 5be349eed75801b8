package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/billing"
)

// SimulatedGateway acepta todo sin salir a la red. Para desarrollo y pruebas locales;
// se usa cuando no hay URL de servicio configurada.
type SimulatedGateway struct {
	mu     sync.Mutex
	status map[string]string
	log    zerolog.Logger
}

var _ billing.Gateway = (*SimulatedGateway)(nil)

// NewSimulatedGateway construye el gateway simulado.
func NewSimulatedGateway(log zerolog.Logger) *SimulatedGateway {
	return &SimulatedGateway{status: make(map[string]string), log: log.With().Str("component", "gateway").Logger()}
}

// Submit registra el alta. Reenviar el mismo id devuelve la misma referencia.
func (g *SimulatedGateway) Submit(_ context.Context, req billing.GatewayRequest) (*billing.GatewayResult, error) {
	return g.accept(req.AttestationID, "accepted"), nil
}

// Cancel registra la anulación.
func (g *SimulatedGateway) Cancel(_ context.Context, req billing.GatewayRequest) (*billing.GatewayResult, error) {
	return g.accept(req.AttestationID, "cancelled"), nil
}

// CheckStatus devuelve el estado registrado o "unknown".
func (g *SimulatedGateway) CheckStatus(_ context.Context, attestationID string) (*billing.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.status[attestationID]
	if !ok {
		return &billing.GatewayResult{Status: "unknown"}, nil
	}
	return &billing.GatewayResult{Accepted: true, ReferenceID: reference(attestationID), Status: st}, nil
}

func (g *SimulatedGateway) accept(attestationID, status string) *billing.GatewayResult {
	g.mu.Lock()
	g.status[attestationID] = status
	g.mu.Unlock()
	g.log.Info().Str("attestation_id", attestationID).Str("status", status).Msg("gateway simulado: registro aceptado")
	return &billing.GatewayResult{Accepted: true, ReferenceID: reference(attestationID), Status: status}
}

func reference(attestationID string) string {
	sum := sha256.Sum256([]byte(attestationID))
	return "SIM-" + hex.EncodeToString(sum[:6])
}
