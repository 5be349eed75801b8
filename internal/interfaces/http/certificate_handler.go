package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae/signer"
)

// CertificateHandler expone los metadatos del certificado de firma. Nunca la llave.
type CertificateHandler struct {
	store *signer.CertificateStore
	log   zerolog.Logger
}

// NewCertificateHandler construye el handler.
func NewCertificateHandler(store *signer.CertificateStore, log zerolog.Logger) *CertificateHandler {
	return &CertificateHandler{store: store, log: log}
}

// Get GET /api/certificate
func (h *CertificateHandler) Get(c *fiber.Ctx) error {
	info, err := h.store.Info()
	if errors.Is(err, signer.ErrUnsignedMode) {
		return c.JSON(dto.CertificateResponse{Unsigned: true})
	}
	if err != nil {
		return writeError(c, h.log, err)
	}
	validity, err := h.store.Validate()
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.CertificateResponse{
		Subject:         info.Subject,
		Issuer:          info.Issuer,
		SerialNumber:    info.SerialNumber,
		NotBefore:       info.NotBefore,
		NotAfter:        info.NotAfter,
		CurrentlyValid:  validity.CurrentlyValid,
		ExpiringSoon:    validity.ExpiringSoon,
		DaysUntilExpiry: validity.DaysUntilExpiry,
	})
}
