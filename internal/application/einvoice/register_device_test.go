package einvoice_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/zatca-api/internal/application/einvoice"
	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	zatcapkg "github.com/jhoicas/zatca-api/pkg/zatca"
)

func testProfile() entity.CompanyProfile {
	return entity.CompanyProfile{
		VATNumber:          "311111111101113",
		CRNumber:           "1010101010",
		LegalName:          "Acme Trading Co.",
		Street:             "King Fahd Rd",
		BuildingNumber:     "1234",
		PlotIdentification: "5678",
		CitySubdivision:    "Olaya",
		City:               "Riyadh",
		PostalZone:         "12344",
		Country:            "SA",
		BusinessCategory:   "Retail",
		CommonName:         "POS-1-Riyadh",
		SolutionName:       "acme-pos",
		SolutionVersion:    "2.1",
	}
}

func newDeviceUseCase(api *stubAPIClient) (*einvoice.DeviceUseCase, *fakeDeviceRepo) {
	devices := newFakeDeviceRepo()
	uc := einvoice.NewDeviceUseCase(
		devices,
		infrazatca.NewCSRGeneratorService(false),
		api,
		infrazatca.NewXMLBuilderService(),
		&stubSigner{},
		zerolog.Nop(),
	)
	return uc, devices
}

// TestDeviceUseCase_Register verifica el registro feliz: clave y CSR
// generados, credencial de cumplimiento persistida y estado correcto.
func TestDeviceUseCase_Register(t *testing.T) {
	uc, devices := newDeviceUseCase(&stubAPIClient{})

	device, err := uc.Register(context.Background(), "123456", testProfile())
	require.NoError(t, err)

	assert.Equal(t, entity.DeviceStatusComplianceIssued, device.Status)
	assert.Equal(t, "compliance-token", device.SecurityToken)
	assert.Equal(t, "compliance-secret", device.Secret)
	assert.Equal(t, "1234567890123", device.RequestID)
	assert.Contains(t, device.PrivateKeyPEM, "EC PRIVATE KEY")
	assert.Contains(t, device.CSRPEM, "CERTIFICATE REQUEST")

	stored, err := devices.GetByID(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DeviceStatusComplianceIssued, stored.Status)
	assert.Equal(t, "compliance-token", stored.SecurityToken)
}

// TestDeviceUseCase_Register_OTPVacio verifica que sin OTP no se toca la red
// ni el almacén.
func TestDeviceUseCase_Register_OTPVacio(t *testing.T) {
	uc, devices := newDeviceUseCase(&stubAPIClient{})

	_, err := uc.Register(context.Background(), "", testProfile())

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "otp", vErr.Field)
	assert.Empty(t, devices.devices)
}

// TestDeviceUseCase_Register_RechazoCSR verifica que un rechazo de la
// pasarela deja el dispositivo en pending con el motivo registrado.
func TestDeviceUseCase_Register_RechazoCSR(t *testing.T) {
	api := &stubAPIClient{
		csrFn: func(_, _ string) (*infrazatca.CSIDResponse, error) {
			return nil, &domain.CredentialError{Reason: "dispositionMessage NOT_ISSUED"}
		},
	}
	uc, devices := newDeviceUseCase(api)

	_, err := uc.Register(context.Background(), "123456", testProfile())

	var credErr *domain.CredentialError
	require.ErrorAs(t, err, &credErr)

	stored, gerr := devices.GetByVATNumber(context.Background(), testProfile().VATNumber)
	require.NoError(t, gerr)
	assert.Equal(t, entity.DeviceStatusPending, stored.Status)
	require.Len(t, stored.Errors, 1)
	assert.Contains(t, stored.Errors[0], "NOT_ISSUED")
}

// TestDeviceUseCase_Activate verifica el canje de producción y su
// idempotencia sobre un dispositivo ya activo.
func TestDeviceUseCase_Activate(t *testing.T) {
	api := &stubAPIClient{}
	uc, _ := newDeviceUseCase(api)

	device, err := uc.Register(context.Background(), "123456", testProfile())
	require.NoError(t, err)

	activated, err := uc.Activate(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DeviceStatusActive, activated.Status)
	assert.Equal(t, "production-token", activated.SecurityToken)
	assert.Equal(t, "production-secret", activated.Secret)
	assert.Equal(t, 1, api.productionCalls)

	// Segunda activación: devuelve la credencial existente sin ir a la red.
	again, err := uc.Activate(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Equal(t, "production-token", again.SecurityToken)
	assert.Equal(t, 1, api.productionCalls)
}

// TestDeviceUseCase_Activate_SinCumplimiento verifica que un dispositivo
// pending no puede canjear la credencial de producción.
func TestDeviceUseCase_Activate_SinCumplimiento(t *testing.T) {
	uc, devices := newDeviceUseCase(&stubAPIClient{})

	pending := &entity.Device{ID: "dev-1", Status: entity.DeviceStatusPending, Profile: testProfile()}
	require.NoError(t, devices.Create(context.Background(), pending))

	_, err := uc.Activate(context.Background(), "dev-1")

	var credErr *domain.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Contains(t, credErr.Reason, "cumplimiento")
}

// TestDeviceUseCase_RunComplianceSamples verifica que se envían las seis
// variantes y que sus hashes forman una cadena desde el génesis.
func TestDeviceUseCase_RunComplianceSamples(t *testing.T) {
	api := &stubAPIClient{}
	uc, _ := newDeviceUseCase(api)

	device, err := uc.Register(context.Background(), "123456", testProfile())
	require.NoError(t, err)

	require.NoError(t, uc.RunComplianceSamples(context.Background(), device))
	require.Len(t, api.compliancePayloads, 6)

	// El firmador stub emite hash-1..hash-6 en orden; cada muestra lleva en su
	// XML el hash de la anterior como PIH, y la primera el génesis.
	for i, payload := range api.compliancePayloads {
		assert.Equal(t, fmt.Sprintf("hash-%d", i+1), payload.InvoiceHash)
		if i == 0 {
			assert.Contains(t, string(payload.SignedXML), zatcapkg.GenesisPreviousHash)
		} else {
			assert.Contains(t, string(payload.SignedXML), fmt.Sprintf("hash-%d", i))
		}
	}

	// Las seis combinaciones {simplificada, estándar} × {388, 381, 383}.
	var simplified, standard int
	for _, payload := range api.compliancePayloads {
		if strings.Contains(string(payload.SignedXML), `name="02`) {
			simplified++
		} else {
			standard++
		}
	}
	assert.Equal(t, 3, simplified)
	assert.Equal(t, 3, standard)
}

// TestDeviceUseCase_RunComplianceSamples_FalloDeRed verifica que un fallo de
// transporte en una muestra no aborta las demás.
func TestDeviceUseCase_RunComplianceSamples_FalloDeRed(t *testing.T) {
	calls := 0
	api := &stubAPIClient{}
	api.complianceFn = func(_ *infrazatca.InvoicePayload) (*infrazatca.SubmitResponse, error) {
		calls++
		if calls == 2 {
			return nil, &domain.NetworkError{Op: "compliance invoice", Err: fmt.Errorf("conexión rechazada")}
		}
		return &infrazatca.SubmitResponse{ReportingStatus: "REPORTED"}, nil
	}
	uc, _ := newDeviceUseCase(api)

	device, err := uc.Register(context.Background(), "123456", testProfile())
	require.NoError(t, err)

	require.NoError(t, uc.RunComplianceSamples(context.Background(), device))
	assert.Equal(t, 6, calls)
}

// TestDeviceUseCase_RunComplianceSamples_SinCredencial verifica el rechazo
// sobre un dispositivo que no completó el registro.
func TestDeviceUseCase_RunComplianceSamples_SinCredencial(t *testing.T) {
	uc, _ := newDeviceUseCase(&stubAPIClient{})

	device := &entity.Device{ID: "dev-1", Status: entity.DeviceStatusPending, Profile: testProfile()}
	err := uc.RunComplianceSamples(context.Background(), device)

	var credErr *domain.CredentialError
	require.ErrorAs(t, err, &credErr)
}

// TestDeviceUseCase_Onboard verifica el alta completa en una sola llamada:
// registro, muestras y canje de producción.
func TestDeviceUseCase_Onboard(t *testing.T) {
	api := &stubAPIClient{}
	uc, _ := newDeviceUseCase(api)

	device, err := uc.Onboard(context.Background(), "123456", testProfile())
	require.NoError(t, err)

	assert.Equal(t, entity.DeviceStatusActive, device.Status)
	assert.Equal(t, "production-token", device.SecurityToken)
	assert.Len(t, api.compliancePayloads, 6)
	assert.Equal(t, 1, api.productionCalls)
}
