// Servicio de firma XAdES para facturas ZATCA fase 2. Calcula el hash del
// documento, firma con la clave EC del dispositivo e inyecta el bloque
// ext:UBLExtension y el QR sobre los marcadores del XML.

package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	zatcapkg "github.com/jhoicas/zatca-api/pkg/zatca"
)

// SigningService implementa pkg/zatca.Signer.
type SigningService struct {
	hasher *zatca.HasherService
	now    func() time.Time
}

var _ zatcapkg.Signer = (*SigningService)(nil)

// NewSigningService crea el servicio.
func NewSigningService(hasher *zatca.HasherService) *SigningService {
	return &SigningService{
		hasher: hasher,
		now:    time.Now,
	}
}

// Sign firma el documento construido (con marcadores) y devuelve el XML
// final, el hash de factura, la firma digital y el QR.
func (s *SigningService) Sign(xmlBytes []byte, cred zatcapkg.Credential, meta zatcapkg.InvoiceMeta) (*zatcapkg.SignResult, error) {
	invoiceHash, err := s.hasher.InvoiceHash(xmlBytes)
	if err != nil {
		return nil, err
	}

	cert, cleanedCert, err := ParseSecurityToken(cred.SecurityToken)
	if err != nil {
		return nil, err
	}
	key, err := ParseECPrivateKey(cred.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	digitalSignature, err := s.signInvoiceHash(invoiceHash, key)
	if err != nil {
		return nil, err
	}

	// Las dos representaciones de SignedProperties: la de firma (con xmlns,
	// sobre ella se calcula el digest) y la incrustada en el documento.
	props := signedPropertiesValues{
		timestamp:  s.now().UTC().Format("2006-01-02T15:04:05Z"),
		certHash:   CertificateHash(cleanedCert),
		certIssuer: cert.Issuer.String(),
		certSerial: cert.SerialNumber.String(),
	}
	forSigning := renderSignedProperties(signedPropertiesForSigning, props)
	embedded := renderSignedProperties(signedPropertiesEmbedded, props)

	// Digest de SignedProperties: base64 de la cadena hex del SHA-256, igual
	// que el hash del certificado. Convención de la pasarela.
	propsDigest := sha256.Sum256([]byte(forSigning))
	signedPropsHash := base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(propsDigest[:])))

	extension := strings.NewReplacer(
		"SET_INVOICE_HASH", invoiceHash,
		"SET_SIGNED_PROPERTIES_HASH", signedPropsHash,
		"SET_DIGITAL_SIGNATURE", digitalSignature,
		"SET_CERTIFICATE", cleanedCert,
		"SET_SIGNED_PROPERTIES_XML", embedded,
	).Replace(ublExtensionBlock)

	qr, err := s.buildQR(cert, meta, invoiceHash, digitalSignature)
	if err != nil {
		return nil, err
	}

	signed := strings.Replace(string(xmlBytes), zatca.PlaceholderUBLExtensions, extension, 1)
	signed = strings.Replace(signed, zatca.PlaceholderQRCode, qr, 1)

	return &zatcapkg.SignResult{
		SignedXML:        []byte(signed),
		InvoiceHash:      invoiceHash,
		DigitalSignature: digitalSignature,
		QRCode:           qr,
	}, nil
}

// signInvoiceHash firma los BYTES del hash (base64 decodificado) con
// ECDSA-SHA256: el digest firmado es sha256(hash_bytes), no el hash mismo.
func (s *SigningService) signInvoiceHash(invoiceHash string, key *ecdsa.PrivateKey) (string, error) {
	hashBytes, err := base64.StdEncoding.DecodeString(invoiceHash)
	if err != nil {
		return "", &domain.CryptoError{Op: "decodificar hash de factura", Err: err}
	}
	digest := sha256.Sum256(hashBytes)
	signature, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", &domain.CryptoError{Op: "firmar hash de factura", Err: err}
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// buildQR arma los nueve campos TLV. Los campos 8 y 9 (clave pública DER y
// firma del certificado) salen del certificado CSID, no de la factura.
func (s *SigningService) buildQR(cert *x509.Certificate, meta zatcapkg.InvoiceMeta, invoiceHash, digitalSignature string) (string, error) {
	publicKeyDER, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return "", &domain.CryptoError{Op: "serializar clave pública del CSID", Err: err}
	}

	payload := &zatca.QRPayload{
		SellerName:           meta.SellerName,
		VATNumber:            meta.VATNumber,
		Timestamp:            meta.IssuedAt,
		Total:                meta.Total,
		TaxAmount:            meta.TaxAmount,
		InvoiceHash:          invoiceHash,
		DigitalSignature:     digitalSignature,
		PublicKey:            publicKeyDER,
		CertificateSignature: cert.Signature,
	}
	return payload.Encode()
}

type signedPropertiesValues struct {
	timestamp  string
	certHash   string
	certIssuer string
	certSerial string
}

func renderSignedProperties(template string, v signedPropertiesValues) string {
	return strings.NewReplacer(
		"SET_SIGN_TIMESTAMP", v.timestamp,
		"SET_CERTIFICATE_HASH", v.certHash,
		"SET_CERTIFICATE_ISSUER", v.certIssuer,
		"SET_CERTIFICATE_SERIAL_NUMBER", v.certSerial,
	).Replace(template)
}
