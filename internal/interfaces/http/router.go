package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/zatca-api/internal/application/einvoice"
	"github.com/jhoicas/zatca-api/internal/infrastructure/pdf"
	"github.com/jhoicas/zatca-api/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	DeviceUC  *einvoice.DeviceUseCase
	InvoiceUC *einvoice.InvoiceUseCase
	PDFGen    *pdf.MarotoPDFGenerator
	JWT       *jwt.Manager
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWT))

	// Dispositivos: ciclo de vida de credenciales
	devices := protected.Group("/devices")
	deviceHandler := NewDeviceHandler(deps.DeviceUC)
	devices.Post("/", deviceHandler.Register)
	devices.Post("/onboard", deviceHandler.Onboard)
	devices.Get("/", deviceHandler.GetByVAT)
	devices.Get("/:id", deviceHandler.GetByID)
	devices.Post("/:id/compliance", deviceHandler.RunComplianceSamples)
	devices.Post("/:id/activate", deviceHandler.Activate)

	// Facturas: emisión por dispositivo y consulta por envío
	invoiceHandler := NewInvoiceHandler(deps.InvoiceUC, deps.DeviceUC, deps.PDFGen)
	devices.Post("/:id/invoices", invoiceHandler.Submit)
	devices.Get("/:id/invoices", invoiceHandler.List)

	invoices := protected.Group("/invoices")
	invoices.Get("/:id", invoiceHandler.GetByID)
	invoices.Get("/:id/xml", invoiceHandler.GetXML)
	invoices.Get("/:id/pdf", invoiceHandler.GetPDF)
}
