package zatca

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/zatca-api/internal/domain"
)

// QRPayload son los nueve campos TLV del código QR de la fase 2, en el orden
// exacto que exige la etiqueta: la posición del campo es su tag (base 1).
// Los dos últimos campos son bytes crudos (DER de la clave pública y firma
// del certificado), no texto.
type QRPayload struct {
	SellerName           string
	VATNumber            string
	Timestamp            time.Time
	Total                decimal.Decimal // total con IVA
	TaxAmount            decimal.Decimal
	InvoiceHash          string
	DigitalSignature     string
	PublicKey            []byte
	CertificateSignature []byte
}

// Encode serializa los campos como TLV (tag 1 byte, longitud 1 byte en BYTES,
// valor) y devuelve el resultado en base64. La longitud cuenta bytes, no
// caracteres: un nombre en árabe ocupa más bytes que runas y el lector del QR
// necesita la longitud real.
func (p *QRPayload) Encode() (string, error) {
	fields := [][]byte{
		[]byte(p.SellerName),
		[]byte(p.VATNumber),
		[]byte(p.Timestamp.Format(time.RFC3339)),
		[]byte(p.Total.StringFixed(2)),
		[]byte(p.TaxAmount.StringFixed(2)),
		[]byte(p.InvoiceHash),
		[]byte(p.DigitalSignature),
		p.PublicKey,
		p.CertificateSignature,
	}

	var buf []byte
	for i, value := range fields {
		if len(value) > 255 {
			return "", domain.NewValidationError(
				"qr.field_"+strconv.Itoa(i+1),
				fmt.Sprintf("el campo TLV excede 255 bytes (%d)", len(value)),
			)
		}
		buf = append(buf, byte(i+1), byte(len(value)))
		buf = append(buf, value...)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// DecodeTLV deshace la codificación TLV. Devuelve los valores indexados por
// tag; se usa para verificación y para mostrar el contenido del QR.
func DecodeTLV(encoded string) (map[byte][]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, domain.NewValidationError("qr", "el QR no es base64 válido")
	}
	fields := make(map[byte][]byte)
	for i := 0; i < len(raw); {
		if i+2 > len(raw) {
			return nil, domain.NewValidationError("qr", "estructura TLV truncada")
		}
		tag, length := raw[i], int(raw[i+1])
		i += 2
		if i+length > len(raw) {
			return nil, domain.NewValidationError("qr", fmt.Sprintf("el campo %d declara %d bytes pero no alcanzan", tag, length))
		}
		fields[tag] = raw[i : i+length]
		i += length
	}
	return fields, nil
}
