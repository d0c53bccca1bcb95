package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/zatca-api/internal/application/dto"
	"github.com/jhoicas/zatca-api/internal/application/einvoice"
	"github.com/jhoicas/zatca-api/internal/infrastructure/pdf"
)

// InvoiceHandler maneja las peticiones HTTP de emisión y consulta de facturas.
type InvoiceHandler struct {
	uc     *einvoice.InvoiceUseCase
	device *einvoice.DeviceUseCase
	pdfGen *pdf.MarotoPDFGenerator
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(uc *einvoice.InvoiceUseCase, device *einvoice.DeviceUseCase, pdfGen *pdf.MarotoPDFGenerator) *InvoiceHandler {
	return &InvoiceHandler{uc: uc, device: device, pdfGen: pdfGen}
}

// Submit construye, firma y envía una factura por el dispositivo.
// POST /api/devices/:id/invoices
func (h *InvoiceHandler) Submit(c *fiber.Ctx) error {
	var in dto.SubmitInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	submission, err := h.uc.Submit(c.Context(), in.Input(c.Params("id")))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromSubmission(submission))
}

// List lista los envíos del dispositivo, más reciente primero.
// GET /api/devices/:id/invoices?limit=50
func (h *InvoiceHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "query inválida"})
	}
	page.DefaultPage()

	submissions, err := h.uc.ListSubmissions(c.Context(), c.Params("id"), page.Limit)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]*dto.SubmissionResponse, 0, len(submissions))
	for _, s := range submissions {
		out = append(out, dto.FromSubmission(s))
	}
	return c.JSON(out)
}

// GetByID obtiene un envío.
// GET /api/invoices/:id
func (h *InvoiceHandler) GetByID(c *fiber.Ctx) error {
	submission, err := h.uc.GetSubmission(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromSubmission(submission))
}

// GetXML descarga el XML firmado tal cual viajó a la autoridad.
// GET /api/invoices/:id/xml
func (h *InvoiceHandler) GetXML(c *fiber.Ctx) error {
	submission, err := h.uc.GetSubmission(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+submission.InvoiceNumber+`.xml"`)
	return c.SendString(submission.SignedXML)
}

// GetPDF genera y descarga la representación gráfica del envío.
// GET /api/invoices/:id/pdf
func (h *InvoiceHandler) GetPDF(c *fiber.Ctx) error {
	submission, err := h.uc.GetSubmission(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	device, err := h.device.GetDevice(c.Context(), submission.DeviceID)
	if err != nil {
		return writeError(c, err)
	}
	doc, err := h.pdfGen.GenerateSubmissionPDF(c.Context(), submission, device)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+submission.InvoiceNumber+`.pdf"`)
	return c.Send(doc)
}
