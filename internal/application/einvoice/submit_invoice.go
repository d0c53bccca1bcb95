// Caso de uso de envío de facturas: pipeline completo construir →
// canonicalizar/hashear → firmar → QR → enviar → persistir, serializado por
// dispositivo para no romper la cadena PIH/ICV.

package einvoice

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	zatcapkg "github.com/jhoicas/zatca-api/pkg/zatca"
)

// SubmitInvoiceInput son los datos de negocio de una factura a emitir. El
// UUID, el ICV y el PIH no vienen del caller: los asigna el caso de uso.
type SubmitInvoiceInput struct {
	DeviceID      string
	SerialNumber  string
	IssuedAt      time.Time
	POS           bool
	TypeCode      string // 388 | 381 | 383
	BillingRefID  string // factura original, para notas
	Customer      infrazatca.Party
	Lines         []infrazatca.LineItem
	GrandTotal    decimal.Decimal
	TaxTotal      decimal.Decimal
	OrderDiscount decimal.Decimal
}

// InvoiceUseCase emite facturas firmadas contra la pasarela.
type InvoiceUseCase struct {
	devices     repository.DeviceRepository
	submissions repository.SubmissionRepository
	builder     *infrazatca.XMLBuilderService
	signer      zatcapkg.Signer
	api         infrazatca.APIClient
	log         zerolog.Logger
	locks       *deviceLocks
}

// NewInvoiceUseCase construye el caso de uso.
func NewInvoiceUseCase(
	devices repository.DeviceRepository,
	submissions repository.SubmissionRepository,
	builder *infrazatca.XMLBuilderService,
	signer zatcapkg.Signer,
	api infrazatca.APIClient,
	log zerolog.Logger,
) *InvoiceUseCase {
	return &InvoiceUseCase{
		devices:     devices,
		submissions: submissions,
		builder:     builder,
		signer:      signer,
		api:         api,
		log:         log.With().Str("component", "invoice_usecase").Logger(),
		locks:       newDeviceLocks(),
	}
}

// Submit ejecuta el pipeline completo bajo el lock del dispositivo. Un fallo
// de red se devuelve como NetworkError y es seguro reintentar el envío entero:
// el documento y su hash son deterministas para el mismo ICV/PIH.
func (uc *InvoiceUseCase) Submit(ctx context.Context, input *SubmitInvoiceInput) (*entity.Submission, error) {
	if input == nil || input.DeviceID == "" {
		return nil, domain.NewValidationError("device_id", "el dispositivo es obligatorio")
	}

	unlock := uc.locks.Lock(input.DeviceID)
	defer unlock()

	device, err := uc.devices.GetByID(ctx, input.DeviceID)
	if err != nil {
		return nil, err
	}
	if !device.IsActive() {
		return nil, &domain.CredentialError{
			Reason: "el dispositivo no está activo: estado " + string(device.Status),
		}
	}

	// La cabeza de la cadena sale del almacén, nunca del caller.
	previousHash, headICV, err := uc.chainHead(ctx, device.ID)
	if err != nil {
		return nil, err
	}
	icv := device.InvoiceCounter + 1
	if headICV >= icv {
		// El contador del dispositivo quedó detrás de la cadena persistida:
		// algo más escribió envíos fuera de este pipeline.
		return nil, &domain.ChainIntegrityError{
			DeviceID: device.ID,
			Expected: previousHash,
			Got:      "contador ICV desincronizado",
		}
	}

	buildCtx := uc.buildContext(device, input, icv, previousHash)
	xmlBytes, err := uc.builder.Build(buildCtx)
	if err != nil {
		return nil, err
	}

	result, err := uc.signer.Sign(xmlBytes, device.Credentials(), zatcapkg.InvoiceMeta{
		SellerName: device.Profile.LegalName,
		VATNumber:  device.Profile.VATNumber,
		IssuedAt:   buildCtx.Header.IssuedAt,
		Total:      buildCtx.GrandTotal,
		TaxAmount:  buildCtx.TaxTotal,
	})
	if err != nil {
		return nil, err
	}

	submission := &entity.Submission{
		ID:                  uuid.NewString(),
		DeviceID:            device.ID,
		InvoiceNumber:       input.SerialNumber,
		UUID:                buildCtx.Header.UUID,
		ICV:                 icv,
		InvoiceHash:         result.InvoiceHash,
		PreviousInvoiceHash: previousHash,
		SignedXML:           string(result.SignedXML),
		QRCode:              result.QRCode,
		Status:              entity.SubmissionStatusSigned,
		CreatedAt:           time.Now(),
	}
	if err := uc.submissions.Create(ctx, submission); err != nil {
		return nil, err
	}

	payload := &infrazatca.InvoicePayload{
		InvoiceHash: result.InvoiceHash,
		UUID:        submission.UUID,
		SignedXML:   result.SignedXML,
	}
	resp, err := uc.api.SubmitInvoice(ctx, payload, device.Credentials(), input.POS)
	if err != nil {
		uc.recordFailure(ctx, submission, err)
		return nil, err
	}

	now := time.Now()
	submission.SubmittedAt = &now
	submission.RawResponse = resp.Raw
	submission.Warnings = messagesOf(resp.ValidationResults.WarningMessages)
	submission.Errors = messagesOf(resp.ValidationResults.ErrorMessages)

	// El estado persistido es el que asignó la autoridad: un 2xx con
	// NOT_REPORTED/NOT_CLEARED sigue siendo rechazo y no encadena.
	authorityStatus := resp.Status(input.POS)
	accepted := zatcapkg.StatusCleared
	if input.POS {
		accepted = zatcapkg.StatusReported
	}
	if authorityStatus != accepted {
		submission.Status = entity.SubmissionStatusFailed
		if uerr := uc.submissions.Update(ctx, submission); uerr != nil {
			uc.log.Error().Err(uerr).Str("submission_id", submission.ID).Msg("no se pudo persistir el rechazo del envío")
		}
		return nil, &domain.AuthorityRejection{
			Status:      authorityStatus,
			Warnings:    submission.Warnings,
			Errors:      submission.Errors,
			RawResponse: resp.Raw,
		}
	}

	if input.POS {
		submission.Status = entity.SubmissionStatusReported
	} else {
		submission.Status = entity.SubmissionStatusCleared
		// La liquidación devuelve el documento sellado por la autoridad;
		// ese es el XML legal que se conserva.
		if resp.ClearedInvoice != "" {
			if cleared, derr := base64.StdEncoding.DecodeString(resp.ClearedInvoice); derr == nil {
				submission.SignedXML = string(cleared)
			}
		}
	}
	if err := uc.submissions.Update(ctx, submission); err != nil {
		return nil, err
	}

	// Recién ahora el contador avanza: el envío quedó encadenado.
	device.InvoiceCounter = icv
	device.UpdatedAt = now
	if err := uc.devices.Update(ctx, device); err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("device_id", device.ID).
		Str("submission_id", submission.ID).
		Int64("icv", icv).
		Str("status", string(submission.Status)).
		Msg("factura enviada")
	return submission, nil
}

// GetSubmission devuelve un envío persistido.
func (uc *InvoiceUseCase) GetSubmission(ctx context.Context, id string) (*entity.Submission, error) {
	return uc.submissions.GetByID(ctx, id)
}

// ListSubmissions lista los envíos de un dispositivo, más reciente primero.
func (uc *InvoiceUseCase) ListSubmissions(ctx context.Context, deviceID string, limit int) ([]*entity.Submission, error) {
	return uc.submissions.ListByDevice(ctx, deviceID, limit)
}

// chainHead devuelve el hash e ICV del último envío aceptado del dispositivo,
// o el hash génesis si la cadena está vacía.
func (uc *InvoiceUseCase) chainHead(ctx context.Context, deviceID string) (string, int64, error) {
	head, err := uc.submissions.GetChainHead(ctx, deviceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return zatcapkg.GenesisPreviousHash, 0, nil
		}
		return "", 0, err
	}
	return head.InvoiceHash, head.ICV, nil
}

// recordFailure persiste el resultado de un envío rechazado o fallido; la
// respuesta cruda de la autoridad se conserva para auditoría.
func (uc *InvoiceUseCase) recordFailure(ctx context.Context, submission *entity.Submission, cause error) {
	submission.Status = entity.SubmissionStatusFailed

	var rejection *domain.AuthorityRejection
	if errors.As(cause, &rejection) {
		submission.Warnings = rejection.Warnings
		submission.Errors = rejection.Errors
		submission.RawResponse = rejection.RawResponse
	} else {
		submission.Errors = []string{cause.Error()}
	}

	if err := uc.submissions.Update(ctx, submission); err != nil {
		uc.log.Error().Err(err).Str("submission_id", submission.ID).Msg("no se pudo persistir el fallo del envío")
	}
}

func (uc *InvoiceUseCase) buildContext(device *entity.Device, input *SubmitInvoiceInput, icv int64, previousHash string) *infrazatca.BuildContext {
	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	typeCode := input.TypeCode
	if typeCode == "" {
		typeCode = zatcapkg.TypeCodeInvoice
	}

	return &infrazatca.BuildContext{
		Header: infrazatca.InvoiceHeader{
			SerialNumber:        input.SerialNumber,
			UUID:                uuid.NewString(),
			IssuedAt:            issuedAt,
			POS:                 input.POS,
			TypeCode:            typeCode,
			PreviousInvoiceHash: previousHash,
			Counter:             icv,
			BillingReferenceID:  input.BillingRefID,
		},
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
		Customer:      input.Customer,
		Lines:         input.Lines,
		GrandTotal:    input.GrandTotal,
		TaxTotal:      input.TaxTotal,
		OrderDiscount: input.OrderDiscount,
	}
}

func messagesOf(msgs []infrazatca.ValidationMessage) []string {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Message)
	}
	return out
}
