package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/application/dto"
)

// PartyHandler expone el emisor del token y sus clientes.
type PartyHandler struct {
	uc  *billing.PartyUseCase
	log zerolog.Logger
}

// NewPartyHandler construye el handler.
func NewPartyHandler(uc *billing.PartyUseCase, log zerolog.Logger) *PartyHandler {
	return &PartyHandler{uc: uc, log: log}
}

// Issuer GET /api/issuer
func (h *PartyHandler) Issuer(c *fiber.Ctx) error {
	out, err := h.uc.GetIssuer(c.UserContext(), GetIssuerID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// CreateClient godoc
// @Summary      Alta de cliente
// @Tags         clients
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateClientRequest  true  "Datos del cliente"
// @Success      201   {object}  dto.ClientResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/clients [post]
func (h *PartyHandler) CreateClient(c *fiber.Ctx) error {
	var in dto.CreateClientRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.uc.CreateClient(c.UserContext(), GetIssuerID(c), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// ListClients GET /api/clients?limit=20&offset=0
func (h *PartyHandler) ListClients(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	out, err := h.uc.ListClients(c.UserContext(), GetIssuerID(c), dto.PageRequest{Limit: limit, Offset: offset})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}
