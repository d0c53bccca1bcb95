package signer_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	"github.com/jhoicas/zatca-api/internal/infrastructure/zatca/signer"
	zatcapkg "github.com/jhoicas/zatca-api/pkg/zatca"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tests del firmador XAdES con una credencial autofirmada. La verificación
// reproduce lo que hace la pasarela: decodificar el hash, recalcular el digest
// y verificar la firma ECDSA contra la clave pública del certificado.
// ──────────────────────────────────────────────────────────────────────────────

// newTestCredential genera una clave EC P-256 y un certificado autofirmado, y
// arma el binarySecurityToken como lo entrega la pasarela: base64 del cuerpo
// base64 del DER.
func newTestCredential(t *testing.T) (zatcapkg.Credential, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(621000),
		Subject: pkix.Name{
			CommonName:   "POS-1-Riyadh",
			Organization: []string{"Acme Trading Co."},
			Country:      []string{"SA"},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	body := base64.StdEncoding.EncodeToString(der)
	return zatcapkg.Credential{
		SecurityToken: base64.StdEncoding.EncodeToString([]byte(body)),
		Secret:        "test-secret",
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
	}, cert
}

func buildUnsignedInvoice(t *testing.T) []byte {
	t.Helper()

	builder := zatca.NewXMLBuilderService()
	out, err := builder.Build(&zatca.BuildContext{
		Header: zatca.InvoiceHeader{
			SerialNumber:        "INV-0001",
			UUID:                "8e6bda1f-3f71-4a4e-9db5-10c8e1b45a8d",
			IssuedAt:            time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
			POS:                 true,
			TypeCode:            zatcapkg.TypeCodeInvoice,
			PreviousInvoiceHash: zatcapkg.GenesisPreviousHash,
			Counter:             1,
		},
		Seller: zatca.Party{
			RegistrationName: "Acme Trading Co.",
			VATNumber:        "311111111101113",
			IdentificationID: "1010101010",
			Street:           "King Fahd Rd",
			BuildingNumber:   "1234",
			City:             "Riyadh",
			PostalZone:       "12344",
		},
		Customer: zatca.Party{
			RegistrationName: "Mahmoud",
			IdentificationID: "1234567890",
			Street:           "Olaya St",
			BuildingNumber:   "5678",
			City:             "Riyadh",
			PostalZone:       "12345",
		},
		Lines: []zatca.LineItem{{
			Name:         "Sample Item",
			Quantity:     decimal.NewFromInt(1),
			NetUnitPrice: decimal.RequireFromString("10.00"),
			TaxAmount:    decimal.RequireFromString("1.50"),
		}},
		GrandTotal: decimal.RequireFromString("11.50"),
		TaxTotal:   decimal.RequireFromString("1.50"),
	})
	require.NoError(t, err)
	return out
}

func testMeta() zatcapkg.InvoiceMeta {
	return zatcapkg.InvoiceMeta{
		SellerName: "Acme Trading Co.",
		VATNumber:  "311111111101113",
		IssuedAt:   time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		Total:      decimal.RequireFromString("11.50"),
		TaxAmount:  decimal.RequireFromString("1.50"),
	}
}

func TestSigningService_FirmaVerificable(t *testing.T) {
	cred, cert := newTestCredential(t)
	svc := signer.NewSigningService(zatca.NewHasherService())

	result, err := svc.Sign(buildUnsignedInvoice(t), cred, testMeta())
	require.NoError(t, err)

	// La firma es ECDSA-SHA256 sobre los bytes decodificados del hash.
	hashBytes, err := base64.StdEncoding.DecodeString(result.InvoiceHash)
	require.NoError(t, err)
	signature, err := base64.StdEncoding.DecodeString(result.DigitalSignature)
	require.NoError(t, err)

	digest := sha256.Sum256(hashBytes)
	pub := cert.PublicKey.(*ecdsa.PublicKey)
	assert.True(t, ecdsa.VerifyASN1(pub, digest[:], signature),
		"la firma debe verificar contra la clave pública del certificado")
}

func TestSigningService_InyectaBloqueYQR(t *testing.T) {
	cred, _ := newTestCredential(t)
	svc := signer.NewSigningService(zatca.NewHasherService())

	result, err := svc.Sign(buildUnsignedInvoice(t), cred, testMeta())
	require.NoError(t, err)
	doc := string(result.SignedXML)

	assert.NotContains(t, doc, "SET_UBL_EXTENSIONS_STRING")
	assert.NotContains(t, doc, "SET_QR_CODE_DATA")
	assert.NotContains(t, doc, "SET_INVOICE_HASH")
	assert.Contains(t, doc, "<ds:SignatureValue>"+result.DigitalSignature+"</ds:SignatureValue>")
	assert.Contains(t, doc, "<ds:DigestValue>"+result.InvoiceHash+"</ds:DigestValue>")
	assert.Contains(t, doc, result.QRCode)
	assert.Contains(t, doc, "xades:SignedProperties")
	assert.Contains(t, doc, "<xades:SigningTime>")
}

// TestSigningService_HashEstableTrasInyeccion: el hash del documento firmado
// coincide con el del documento con marcadores, porque la extensión y el QR
// viven en subárboles excluidos del digest.
func TestSigningService_HashEstableTrasInyeccion(t *testing.T) {
	cred, _ := newTestCredential(t)
	hasher := zatca.NewHasherService()
	svc := signer.NewSigningService(hasher)

	unsigned := buildUnsignedInvoice(t)
	result, err := svc.Sign(unsigned, cred, testMeta())
	require.NoError(t, err)

	rehashed, err := hasher.InvoiceHash(result.SignedXML)
	require.NoError(t, err)
	assert.Equal(t, result.InvoiceHash, rehashed)
}

func TestSigningService_CamposDelQR(t *testing.T) {
	cred, cert := newTestCredential(t)
	svc := signer.NewSigningService(zatca.NewHasherService())

	result, err := svc.Sign(buildUnsignedInvoice(t), cred, testMeta())
	require.NoError(t, err)

	fields, err := zatca.DecodeTLV(result.QRCode)
	require.NoError(t, err)
	require.Len(t, fields, 9)

	assert.Equal(t, "Acme Trading Co.", string(fields[1]))
	assert.Equal(t, "311111111101113", string(fields[2]))
	assert.Equal(t, "11.50", string(fields[4]))
	assert.Equal(t, "1.50", string(fields[5]))
	assert.Equal(t, result.InvoiceHash, string(fields[6]))
	assert.Equal(t, result.DigitalSignature, string(fields[7]))

	publicKeyDER, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, publicKeyDER, fields[8], "campo 8: DER de la clave pública del CSID")
	assert.Equal(t, cert.Signature, fields[9], "campo 9: firma del certificado")
}

func TestSigningService_CredencialInvalida(t *testing.T) {
	svc := signer.NewSigningService(zatca.NewHasherService())

	_, err := svc.Sign(buildUnsignedInvoice(t), zatcapkg.Credential{
		SecurityToken: "%%% no es base64 %%%",
		PrivateKeyPEM: "tampoco es una clave",
	}, testMeta())
	require.Error(t, err)
}

// ──────────────────────────────────────────────────────────────────────────────
// Convenciones de hash de la pasarela
// ──────────────────────────────────────────────────────────────────────────────

// TestCertificateHash_ConvencionHex: el digest del certificado es base64 de la
// CADENA hexadecimal del SHA-256, no de los bytes crudos.
func TestCertificateHash_ConvencionHex(t *testing.T) {
	body := "dG9rZW4tZGUtcHJ1ZWJh"

	digest := sha256.Sum256([]byte(body))
	expected := base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(digest[:])))

	assert.Equal(t, expected, signer.CertificateHash(body))
	assert.Len(t, signer.CertificateHash(body), 88, "base64 de 64 caracteres hex")
}

func TestParseSecurityToken_DobleBase64(t *testing.T) {
	cred, cert := newTestCredential(t)

	parsed, cleaned, err := signer.ParseSecurityToken(cred.SecurityToken)
	require.NoError(t, err)
	assert.Equal(t, cert.Raw, parsed.Raw)
	assert.Equal(t, base64.StdEncoding.EncodeToString(cert.Raw), cleaned)
}

func TestParseECPrivateKey_PEMYBase64Desnudo(t *testing.T) {
	cred, _ := newTestCredential(t)

	fromPEM, err := signer.ParseECPrivateKey(cred.PrivateKeyPEM)
	require.NoError(t, err)

	// Solo el cuerpo base64, sin armadura: como queda almacenado a veces.
	block, _ := pem.Decode([]byte(cred.PrivateKeyPEM))
	bare := base64.StdEncoding.EncodeToString(block.Bytes)
	fromBare, err := signer.ParseECPrivateKey(bare)
	require.NoError(t, err)

	assert.True(t, fromPEM.Equal(fromBare))
}
