package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/billing"
)

// ChainHandler expone la verificación de la cadena del emisor.
type ChainHandler struct {
	verifier *billing.ChainVerifier
	log      zerolog.Logger
}

// NewChainHandler construye el handler.
func NewChainHandler(verifier *billing.ChainVerifier, log zerolog.Logger) *ChainHandler {
	return &ChainHandler{verifier: verifier, log: log}
}

// Verify godoc
// @Summary      Verificar la cadena de atestación del emisor
// @Description  Recalcula todas las huellas. Una cadena con incidencias devuelve 200 con valid=false.
// @Tags         chain
// @Produce      json
// @Success      200  {object}  dto.ChainReportResponse
// @Router       /api/chain/verify [get]
func (h *ChainHandler) Verify(c *fiber.Ctx) error {
	report, err := h.verifier.Verify(c.UserContext(), GetIssuerID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(report)
}
