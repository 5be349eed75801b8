package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain"
)

// writeError traduce errores de dominio a HTTP. Firma, configuración e integridad de la
// cadena devuelven un 500 opaco: el detalle solo va al log.
func writeError(c *fiber.Ctx, log zerolog.Logger, err error) error {
	code := domain.CodeOf(err)
	switch {
	case errors.Is(err, domain.ErrValidation):
		resp := dto.ErrorResponse{
			Code:       "VALIDATION",
			Message:    validationMessage(c),
			Violations: domain.Violations(err),
		}
		if code != "INTERNAL" {
			resp.InternalCode = code
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso no encontrado"})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "credenciales inválidas"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "cuenta inactiva"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()})
	case errors.Is(err, domain.ErrSignature), errors.Is(err, domain.ErrConfiguration):
		log.Error().Err(err).Str("code", code).Str("path", c.Path()).Msg("no se pudo emitir la factura")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:         "SIGN_ERROR",
			Message:      "no se pudo emitir la factura",
			InternalCode: code,
		})
	case errors.Is(err, domain.ErrChainIntegrity):
		log.Error().Err(err).Str("code", code).Str("path", c.Path()).Msg("integridad de la cadena comprometida")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:         "CHAIN_ERROR",
			Message:      "no se pudo emitir la factura",
			InternalCode: code,
		})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
	}
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: code, Message: message})
}

func validationMessage(c *fiber.Ctx) string {
	if strings.HasPrefix(c.Path(), "/api/invoices") {
		return "la factura no cumple las reglas de emisión"
	}
	return "datos no válidos"
}
