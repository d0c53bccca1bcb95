package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/zatca-api/internal/application/dto"
	"github.com/jhoicas/zatca-api/internal/application/einvoice"
)

// DeviceHandler maneja las peticiones HTTP del ciclo de vida de dispositivos.
type DeviceHandler struct {
	uc *einvoice.DeviceUseCase
}

// NewDeviceHandler construye el handler.
func NewDeviceHandler(uc *einvoice.DeviceUseCase) *DeviceHandler {
	return &DeviceHandler{uc: uc}
}

// Register registra un dispositivo: genera la clave y el CSR y lo envía con
// el OTP del portal. El dispositivo queda en compliance-issued.
// POST /api/devices
func (h *DeviceHandler) Register(c *fiber.Ctx) error {
	var in dto.RegisterDeviceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	device, err := h.uc.Register(c.Context(), in.OTP, in.Profile())
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromDevice(device))
}

// Onboard ejecuta el alta completa: registro, las seis muestras de
// cumplimiento y el canje de la credencial de producción.
// POST /api/devices/onboard
func (h *DeviceHandler) Onboard(c *fiber.Ctx) error {
	var in dto.RegisterDeviceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	device, err := h.uc.Onboard(c.Context(), in.OTP, in.Profile())
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromDevice(device))
}

// RunComplianceSamples envía las seis facturas de muestra contra el endpoint
// de cumplimiento.
// POST /api/devices/:id/compliance
func (h *DeviceHandler) RunComplianceSamples(c *fiber.Ctx) error {
	device, err := h.uc.GetDevice(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := h.uc.RunComplianceSamples(c.Context(), device); err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromDevice(device))
}

// Activate canjea la credencial de cumplimiento por la de producción.
// Idempotente sobre un dispositivo ya activo.
// POST /api/devices/:id/activate
func (h *DeviceHandler) Activate(c *fiber.Ctx) error {
	device, err := h.uc.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromDevice(device))
}

// GetByID obtiene un dispositivo.
// GET /api/devices/:id
func (h *DeviceHandler) GetByID(c *fiber.Ctx) error {
	device, err := h.uc.GetDevice(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromDevice(device))
}

// GetByVAT obtiene el dispositivo vigente de un número de IVA.
// GET /api/devices?vat_number=...
func (h *DeviceHandler) GetByVAT(c *fiber.Ctx) error {
	vat := c.Query("vat_number")
	if vat == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "vat_number requerido"})
	}
	device, err := h.uc.GetDeviceByVAT(c.Context(), vat)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromDevice(device))
}
