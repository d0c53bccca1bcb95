// Caso de uso del ciclo de vida de credenciales: registro del dispositivo,
// muestras de cumplimiento y canje de la credencial de producción.
//
// Máquina de estados: pending → compliance-issued → active.

package einvoice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	zatcapkg "github.com/jhoicas/zatca-api/pkg/zatca"
)

// DeviceUseCase gestiona el ciclo de vida de la credencial de un dispositivo.
type DeviceUseCase struct {
	devices repository.DeviceRepository
	csrGen  *infrazatca.CSRGeneratorService
	api     infrazatca.APIClient
	builder *infrazatca.XMLBuilderService
	signer  zatcapkg.Signer
	log     zerolog.Logger

	// registering colapsa registros concurrentes del mismo número de IVA en
	// una sola llamada a la pasarela.
	registering singleflight.Group
}

// NewDeviceUseCase construye el caso de uso con todas sus dependencias.
func NewDeviceUseCase(
	devices repository.DeviceRepository,
	csrGen *infrazatca.CSRGeneratorService,
	api infrazatca.APIClient,
	builder *infrazatca.XMLBuilderService,
	signer zatcapkg.Signer,
	log zerolog.Logger,
) *DeviceUseCase {
	return &DeviceUseCase{
		devices: devices,
		csrGen:  csrGen,
		api:     api,
		builder: builder,
		signer:  signer,
		log:     log.With().Str("component", "device_usecase").Logger(),
	}
}

// Register genera la clave y el CSR, lo envía con el OTP del portal Fatoora y
// persiste el dispositivo. Si la pasarela rechaza el OTP o el CSR, el
// dispositivo queda en pending con el rechazo registrado y se devuelve
// CredentialError.
func (uc *DeviceUseCase) Register(ctx context.Context, otp string, profile entity.CompanyProfile) (*entity.Device, error) {
	result, err, _ := uc.registering.Do(profile.VATNumber, func() (any, error) {
		return uc.register(ctx, otp, profile)
	})
	if err != nil {
		return nil, err
	}
	return result.(*entity.Device), nil
}

func (uc *DeviceUseCase) register(ctx context.Context, otp string, profile entity.CompanyProfile) (*entity.Device, error) {
	if otp == "" {
		return nil, domain.NewValidationError("otp", "el OTP del portal es obligatorio")
	}

	generated, err := uc.csrGen.Generate(&profile)
	if err != nil {
		return nil, err
	}

	// Un registro nuevo reemplaza cualquier dispositivo anterior del mismo
	// número de IVA; los reemplazados dejan de ser consultables por VAT.
	if err := uc.devices.Supersede(ctx, profile.VATNumber); err != nil {
		return nil, err
	}

	now := time.Now()
	device := &entity.Device{
		ID:            uuid.NewString(),
		Status:        entity.DeviceStatusPending,
		PrivateKeyPEM: generated.PrivateKeyPEM,
		PublicKeyPEM:  generated.PublicKeyPEM,
		CSRPEM:        generated.CSRPEM,
		Profile:       profile,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.devices.Create(ctx, device); err != nil {
		return nil, err
	}

	resp, err := uc.api.SubmitCSR(ctx, generated.CSRPEM, otp)
	if err != nil {
		var credErr *domain.CredentialError
		if errors.As(err, &credErr) {
			device.Errors = append(device.Errors, credErr.Reason)
			device.UpdatedAt = time.Now()
			if uerr := uc.devices.Update(ctx, device); uerr != nil {
				uc.log.Error().Err(uerr).Str("device_id", device.ID).Msg("no se pudo persistir el rechazo del registro")
			}
		}
		return nil, err
	}

	device.Status = entity.DeviceStatusComplianceIssued
	device.RequestID = resp.RequestID.String()
	device.DispositionMessage = resp.DispositionMessage
	device.SecurityToken = resp.BinarySecurityToken
	device.Secret = resp.Secret
	device.UpdatedAt = time.Now()
	if err := uc.devices.Update(ctx, device); err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("device_id", device.ID).
		Str("vat_number", profile.VATNumber).
		Str("request_id", device.RequestID).
		Msg("dispositivo registrado, credencial de cumplimiento emitida")
	return device, nil
}

// Activate canjea el requestID de cumplimiento por la credencial de
// producción y transiciona el dispositivo a active. Idempotente: sobre un
// dispositivo ya activo devuelve la credencial existente sin tocar la red.
func (uc *DeviceUseCase) Activate(ctx context.Context, deviceID string) (*entity.Device, error) {
	device, err := uc.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.IsActive() {
		return device, nil
	}
	if device.Status != entity.DeviceStatusComplianceIssued {
		return nil, &domain.CredentialError{
			Reason: "el dispositivo no completó el registro de cumplimiento",
		}
	}

	resp, err := uc.api.IssueProductionCSID(ctx, device.RequestID, device.Credentials())
	if err != nil {
		var credErr *domain.CredentialError
		if errors.As(err, &credErr) {
			device.Errors = append(device.Errors, credErr.Reason)
			device.UpdatedAt = time.Now()
			if uerr := uc.devices.Update(ctx, device); uerr != nil {
				uc.log.Error().Err(uerr).Str("device_id", device.ID).Msg("no se pudo persistir el rechazo del canje")
			}
		}
		return nil, err
	}

	device.Status = entity.DeviceStatusActive
	device.DispositionMessage = resp.DispositionMessage
	device.SecurityToken = resp.BinarySecurityToken
	device.Secret = resp.Secret
	device.UpdatedAt = time.Now()
	if err := uc.devices.Update(ctx, device); err != nil {
		return nil, err
	}

	uc.log.Info().Str("device_id", device.ID).Msg("credencial de producción emitida, dispositivo activo")
	return device, nil
}

// GetDevice obtiene un dispositivo por su identificador.
func (uc *DeviceUseCase) GetDevice(ctx context.Context, deviceID string) (*entity.Device, error) {
	return uc.devices.GetByID(ctx, deviceID)
}

// GetDeviceByVAT obtiene el dispositivo vigente (no reemplazado) del número de IVA.
func (uc *DeviceUseCase) GetDeviceByVAT(ctx context.Context, vatNumber string) (*entity.Device, error) {
	return uc.devices.GetByVATNumber(ctx, vatNumber)
}

// Onboard encadena el alta completa: registro, muestras de cumplimiento y
// canje de producción.
func (uc *DeviceUseCase) Onboard(ctx context.Context, otp string, profile entity.CompanyProfile) (*entity.Device, error) {
	device, err := uc.Register(ctx, otp, profile)
	if err != nil {
		return nil, err
	}
	if err := uc.RunComplianceSamples(ctx, device); err != nil {
		return nil, err
	}
	return uc.Activate(ctx, device.ID)
}
