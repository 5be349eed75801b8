package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/application/dto"
)

// InvoiceHandler maneja el ciclo de vida de la factura: borradores, emisión, anulación y cobro.
type InvoiceHandler struct {
	invoices    *billing.InvoiceUseCase
	orch        *billing.AttestationOrchestrator
	submissions *billing.SubmissionService
	log         zerolog.Logger
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(invoices *billing.InvoiceUseCase, orch *billing.AttestationOrchestrator, submissions *billing.SubmissionService, log zerolog.Logger) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, orch: orch, submissions: submissions, log: log}
}

// invoiceID devuelve el :id si es un UUID; cualquier otro valor no puede existir.
func invoiceID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "factura no encontrada"})
}

// Create godoc
// @Summary      Crear borrador de factura
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        body  body  dto.InvoiceRequest  true  "Datos de la factura"
// @Success      201   {object}  dto.InvoiceResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/invoices [post]
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	var in dto.InvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.invoices.CreateDraft(c.UserContext(), GetIssuerID(c), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Update godoc
// @Summary      Modificar borrador
// @Description  Solo los borradores pueden modificarse; una factura emitida es inmutable.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id    path  string              true  "ID de la factura"
// @Param        body  body  dto.InvoiceRequest  true  "Datos de la factura"
// @Success      200   {object}  dto.InvoiceResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/invoices/{id} [put]
func (h *InvoiceHandler) Update(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	var in dto.InvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.invoices.UpdateDraft(c.UserContext(), GetIssuerID(c), id, in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// GetByID godoc
// @Summary      Obtener factura
// @Tags         invoices
// @Produce      json
// @Param        id   path  string  true  "ID de la factura"
// @Success      200  {object}  dto.InvoiceResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetByID(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	out, err := h.invoices.Get(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// List GET /api/invoices?limit=20&offset=0
func (h *InvoiceHandler) List(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	out, err := h.invoices.ListByIssuer(c.UserContext(), GetIssuerID(c), dto.PageRequest{Limit: limit, Offset: offset})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Discard DELETE /api/invoices/:id (solo borradores)
func (h *InvoiceHandler) Discard(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	if err := h.invoices.DiscardDraft(c.UserContext(), GetIssuerID(c), id); err != nil {
		return writeError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Issue godoc
// @Summary      Emitir factura
// @Description  Valida, encadena, firma y genera el QR. El envío al servicio externo queda pendiente y se procesa en segundo plano.
// @Tags         invoices
// @Produce      json
// @Param        id   path  string  true  "ID de la factura"
// @Success      201  {object}  dto.AttestationResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/issue [post]
func (h *InvoiceHandler) Issue(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	out, err := h.orch.Issue(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Cancel godoc
// @Summary      Anular factura emitida
// @Tags         invoices
// @Produce      json
// @Param        id   path  string  true  "ID de la factura"
// @Success      200  {object}  dto.AttestationResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/cancel [post]
func (h *InvoiceHandler) Cancel(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	out, err := h.orch.Cancel(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Pay POST /api/invoices/:id/pay
func (h *InvoiceHandler) Pay(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	out, err := h.invoices.MarkPaid(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Overdue POST /api/invoices/:id/overdue
func (h *InvoiceHandler) Overdue(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	out, err := h.invoices.MarkOverdue(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// QR godoc
// @Summary      Imagen QR de verificación
// @Tags         invoices
// @Produce      png
// @Param        id   path  string  true  "ID de la factura"
// @Success      200
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/qr [get]
func (h *InvoiceHandler) QR(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	png, err := h.orch.QRImage(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

// PDF godoc
// @Summary      Factura en PDF
// @Description  Representación impresa de una factura emitida, con huella y QR de verificación.
// @Tags         invoices
// @Produce      application/pdf
// @Param        id   path  string  true  "ID de la factura"
// @Success      200
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/pdf [get]
func (h *InvoiceHandler) PDF(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	doc, err := h.orch.PDF(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="factura-`+id+`.pdf"`)
	return c.Send(doc)
}

// XML GET /api/invoices/:id/xml. Emitida: documento firmado; borrador: vista previa sin encadenar.
func (h *InvoiceHandler) XML(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	doc, err := h.orch.PreviewXML(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	return c.Send(doc)
}

// Verify godoc
// @Summary      Verificar huella y firma de una factura emitida
// @Tags         invoices
// @Produce      json
// @Param        id   path  string  true  "ID de la factura"
// @Success      200  {object}  dto.VerificationResponse
// @Router       /api/invoices/{id}/verify [get]
func (h *InvoiceHandler) Verify(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	out, err := h.orch.VerifyInvoice(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Submissions GET /api/invoices/:id/submissions
func (h *InvoiceHandler) Submissions(c *fiber.Ctx) error {
	id, ok := invoiceID(c)
	if !ok {
		return notFound(c)
	}
	out, err := h.submissions.ListByInvoice(c.UserContext(), GetIssuerID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}
