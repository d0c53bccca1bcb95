package zatca_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tests del QR TLV de nueve campos. La etiqueta de cada campo es su posición
// (base 1) y la longitud cuenta BYTES, no runas: el nombre del vendedor suele
// venir en árabe y cada carácter ocupa 2 bytes en UTF-8.
// ──────────────────────────────────────────────────────────────────────────────

func buildTestPayload() *zatca.QRPayload {
	return &zatca.QRPayload{
		SellerName:           "Acme Trading Co.",
		VATNumber:            "311111111101113",
		Timestamp:            time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		Total:                decimal.RequireFromString("11.50"),
		TaxAmount:            decimal.RequireFromString("1.50"),
		InvoiceHash:          "x9TpwTHVLX1BmpDpl3W3Nl5RWqMUkTQ0La7NYmVWDNM=",
		DigitalSignature:     "MEQCIBkQZP9lvnyS3nKT9SdhmYbzHml0gVEBYcztGJ1Cw6FZAiA=",
		PublicKey:            []byte{0x30, 0x59, 0x30, 0x13},
		CertificateSignature: []byte{0x30, 0x44, 0x02, 0x20},
	}
}

func TestQRPayload_EncodeDecodeRoundTrip(t *testing.T) {
	payload := buildTestPayload()

	encoded, err := payload.Encode()
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	fields, err := zatca.DecodeTLV(encoded)
	require.NoError(t, err)
	require.Len(t, fields, 9, "el QR debe llevar exactamente nueve campos")

	assert.Equal(t, "Acme Trading Co.", string(fields[1]))
	assert.Equal(t, "311111111101113", string(fields[2]))
	assert.Equal(t, "2024-03-15T10:30:00Z", string(fields[3]))
	assert.Equal(t, "11.50", string(fields[4]))
	assert.Equal(t, "1.50", string(fields[5]))
	assert.Equal(t, payload.InvoiceHash, string(fields[6]))
	assert.Equal(t, payload.DigitalSignature, string(fields[7]))
	assert.Equal(t, payload.PublicKey, fields[8])
	assert.Equal(t, payload.CertificateSignature, fields[9])
}

// TestQRPayload_LongitudEnBytes verifica que la longitud TLV de un nombre en
// árabe cuenta bytes UTF-8 y no caracteres.
func TestQRPayload_LongitudEnBytes(t *testing.T) {
	payload := buildTestPayload()
	payload.SellerName = "شركة أكمي" // 9 runas, 17 bytes

	encoded, err := payload.Encode()
	require.NoError(t, err)

	fields, err := zatca.DecodeTLV(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload.SellerName, string(fields[1]))
	assert.Equal(t, len([]byte(payload.SellerName)), len(fields[1]),
		"la longitud declarada debe cubrir todos los bytes del valor")
}

func TestQRPayload_CampoDemasiadoLargo(t *testing.T) {
	payload := buildTestPayload()
	payload.SellerName = string(make([]byte, 256))

	_, err := payload.Encode()
	require.Error(t, err)

	var valErr *domain.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "qr.field_1", valErr.Field)
}

func TestDecodeTLV_Truncado(t *testing.T) {
	// Tag 1 declara 10 bytes pero el buffer solo trae 2.
	_, err := zatca.DecodeTLV("AQpYWQ==")
	require.Error(t, err)

	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestDecodeTLV_Base64Invalido(t *testing.T) {
	_, err := zatca.DecodeTLV("esto no es base64 !!!")
	require.Error(t, err)
}
