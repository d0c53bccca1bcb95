// Muestras de cumplimiento: las seis variantes {simplificada, estándar} ×
// {factura, nota crédito, nota débito} son un solo algoritmo parametrizado,
// cada una pasando por el pipeline completo construir → firmar → enviar.

package einvoice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	zatcapkg "github.com/jhoicas/zatca-api/pkg/zatca"
)

// sampleVariant es una de las seis combinaciones exigidas por la validación
// de cumplimiento.
type sampleVariant struct {
	pos      bool
	typeCode string
}

var sampleVariants = []sampleVariant{
	{pos: true, typeCode: zatcapkg.TypeCodeInvoice},
	{pos: true, typeCode: zatcapkg.TypeCodeCreditNote},
	{pos: true, typeCode: zatcapkg.TypeCodeDebitNote},
	{pos: false, typeCode: zatcapkg.TypeCodeInvoice},
	{pos: false, typeCode: zatcapkg.TypeCodeCreditNote},
	{pos: false, typeCode: zatcapkg.TypeCodeDebitNote},
}

// RunComplianceSamples construye, firma y envía las seis facturas canónicas
// de prueba al endpoint de cumplimiento. Es obligatorio antes del canje de la
// credencial de producción. Un fallo de transporte en una muestra no aborta
// el resto (se registra y se continúa); un fallo local de construcción o
// firma sí, porque las demás fallarían igual.
func (uc *DeviceUseCase) RunComplianceSamples(ctx context.Context, device *entity.Device) error {
	if device.Status != entity.DeviceStatusComplianceIssued {
		return &domain.CredentialError{Reason: "el dispositivo no tiene credencial de cumplimiento"}
	}

	cred := device.Credentials()
	previousHash := zatcapkg.GenesisPreviousHash

	for i, variant := range sampleVariants {
		buildCtx := uc.sampleBuildContext(device, variant, int64(i+1), previousHash)

		xmlBytes, err := uc.builder.Build(buildCtx)
		if err != nil {
			return err
		}
		result, err := uc.signer.Sign(xmlBytes, cred, zatcapkg.InvoiceMeta{
			SellerName: device.Profile.LegalName,
			VATNumber:  device.Profile.VATNumber,
			IssuedAt:   buildCtx.Header.IssuedAt,
			Total:      buildCtx.GrandTotal,
			TaxAmount:  buildCtx.TaxTotal,
		})
		if err != nil {
			return err
		}

		payload := &infrazatca.InvoicePayload{
			InvoiceHash: result.InvoiceHash,
			UUID:        buildCtx.Header.UUID,
			SignedXML:   result.SignedXML,
		}
		if _, err := uc.api.SubmitComplianceInvoice(ctx, payload, cred); err != nil {
			var netErr *domain.NetworkError
			if errors.As(err, &netErr) {
				uc.log.Warn().Err(err).
					Str("device_id", device.ID).
					Str("type_code", variant.typeCode).
					Bool("pos", variant.pos).
					Msg("fallo de transporte en muestra de cumplimiento, se continúa")
			} else {
				return err
			}
		}

		// Las muestras también encadenan su PIH.
		previousHash = result.InvoiceHash
	}

	uc.log.Info().Str("device_id", device.ID).Msg("muestras de cumplimiento enviadas")
	return nil
}

// sampleBuildContext arma la factura canónica de prueba: una línea de 10.00
// con IVA 1.50, total 11.50.
func (uc *DeviceUseCase) sampleBuildContext(device *entity.Device, variant sampleVariant, counter int64, previousHash string) *infrazatca.BuildContext {
	header := infrazatca.InvoiceHeader{
		SerialNumber:        "SAMPLE-" + variant.typeCode,
		UUID:                uuid.NewString(),
		IssuedAt:            time.Now(),
		POS:                 variant.pos,
		TypeCode:            variant.typeCode,
		PreviousInvoiceHash: previousHash,
		Counter:             counter,
	}
	if variant.typeCode != zatcapkg.TypeCodeInvoice {
		header.BillingReferenceID = "Invoice Number: SAMPLE-388; Invoice Issue Date: " + header.IssuedAt.Format("2006-01-02")
	}

	return &infrazatca.BuildContext{
		Header: header,
		Seller: infrazatca.Party{
			RegistrationName:   device.Profile.LegalName,
			VATNumber:          device.Profile.VATNumber,
			IdentificationID:   device.Profile.CRNumber,
			Street:             device.Profile.Street,
			BuildingNumber:     device.Profile.BuildingNumber,
			PlotIdentification: device.Profile.PlotIdentification,
			CitySubdivision:    device.Profile.CitySubdivision,
			City:               device.Profile.City,
			PostalZone:         device.Profile.PostalZone,
			Country:            device.Profile.Country,
		},
		Customer: infrazatca.Party{
			RegistrationName: "Mahmoud",
			IdentificationID: "1234567890",
			Street:           "Sample Street",
			BuildingNumber:   "1234",
			City:             "Riyadh",
			PostalZone:       "12345",
		},
		Lines: []infrazatca.LineItem{
			{
				Name:         "Sample Item",
				Quantity:     decimal.NewFromInt(1),
				NetUnitPrice: decimal.RequireFromString("10.00"),
				TaxAmount:    decimal.RequireFromString("1.50"),
			},
		},
		GrandTotal: decimal.RequireFromString("11.50"),
		TaxTotal:   decimal.RequireFromString("1.50"),
	}
}
