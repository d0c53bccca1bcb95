package repository

import (
	"context"

	"github.com/jhoicas/zatca-api/internal/domain/entity"
)

// DeviceRepository define el puerto de persistencia para credenciales de dispositivo.
// El almacenamiento es un CRUD simple: el ciclo de vida vive en la capa de aplicación.
type DeviceRepository interface {
	Create(ctx context.Context, device *entity.Device) error
	// Update persiste los campos mutables del ciclo de vida:
	// status, security_token, secret, disposition_message, errors, invoice_counter.
	Update(ctx context.Context, device *entity.Device) error
	GetByID(ctx context.Context, id string) (*entity.Device, error)
	// GetByVATNumber devuelve el dispositivo vigente del contribuyente (el más
	// reciente; un re-registro reemplaza al anterior).
	GetByVATNumber(ctx context.Context, vat string) (*entity.Device, error)
	// Supersede marca los dispositivos previos del contribuyente como
	// reemplazados antes de crear uno nuevo.
	Supersede(ctx context.Context, vat string) error
}
