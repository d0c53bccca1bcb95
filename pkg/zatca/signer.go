// Package zatca: puerto para la firma digital de facturas (XAdES enveloped, ZATCA fase 2).

package zatca

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credential son las credenciales criptográficas del dispositivo: el
// certificado X.509 emitido por la autoridad (base64, sin delimitadores PEM),
// el secreto que lo acompaña y la llave privada EC generada en el registro.
type Credential struct {
	SecurityToken string // binarySecurityToken: certificado X.509 en base64
	Secret        string // secreto API emparejado con el token
	PrivateKeyPEM string // llave privada EC en PEM (o solo el cuerpo base64)
}

// InvoiceMeta son los datos del documento que el firmador necesita además del
// XML: alimentan los campos 1-5 del QR TLV.
type InvoiceMeta struct {
	SellerName string          // razón social del vendedor
	VATNumber  string          // número de IVA del vendedor
	IssuedAt   time.Time       // timestamp de emisión
	Total      decimal.Decimal // total con IVA
	TaxAmount  decimal.Decimal // total de IVA
}

// SignResult es el producto de la etapa de firma: el XML final con la
// extensión UBL y el QR inyectados, más los escalares que se persisten.
type SignResult struct {
	SignedXML        []byte
	InvoiceHash      string // base64(SHA-256(documento canónico))
	DigitalSignature string // base64(ECDSA-SHA256 sobre los bytes del hash)
	QRCode           string // base64 del TLV de 9 campos
}

// Signer firma el XML de una factura (con sus placeholders) y devuelve el
// documento final listo para enviar a la autoridad.
type Signer interface {
	Sign(xmlBytes []byte, cred Credential, meta InvoiceMeta) (*SignResult, error)
}
