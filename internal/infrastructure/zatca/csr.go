package zatca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
)

// OIDs del perfil de CSR de ZATCA: UID lleva el número de IVA, el template
// name distingue sandbox de producción y el SAN dirName transporta dirección
// y categoría de negocio.
var (
	oidUID                     = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}
	oidCertificateTemplateName = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 20, 2}
	oidSubjectAltName          = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidRegisteredAddress       = asn1.ObjectIdentifier{2, 5, 4, 26}
	oidBusinessCategory        = asn1.ObjectIdentifier{2, 5, 4, 15}
)

const (
	templateNameSandbox    = "TSTZATCA-Code-Signing"
	templateNameProduction = "ZATCA-Code-Signing"
)

// GeneratedCredential es el material criptográfico del dispositivo recién
// creado, todo en PEM.
type GeneratedCredential struct {
	PrivateKeyPEM string
	PublicKeyPEM  string
	CSRPEM        string
}

// CSRGeneratorService genera el par de claves EC P-256 y el CSR PKCS#10 con
// el sujeto y las extensiones que exige la pasarela. Transformación pura:
// no toca red ni disco.
type CSRGeneratorService struct {
	live bool
}

// NewCSRGeneratorService crea el servicio. live selecciona el template name
// de producción; en sandbox se usa el de pruebas.
func NewCSRGeneratorService(live bool) *CSRGeneratorService {
	return &CSRGeneratorService{live: live}
}

// Generate valida el perfil de la empresa, genera la clave y construye el CSR.
// El SerialNumber del sujeto codifica solución, versión y un UUID aleatorio:
// "1-<solución>|2-<versión>|3-<uuid>".
func (s *CSRGeneratorService) Generate(profile *entity.CompanyProfile) (*GeneratedCredential, error) {
	if err := s.validateProfile(profile); err != nil {
		return nil, err
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, &domain.CryptoError{Op: "generar clave EC P-256", Err: err}
	}

	serialNumber := fmt.Sprintf("1-%s|2-%s|3-%s", profile.SolutionName, profile.SolutionVersion, uuid.NewString())

	subject := pkix.Name{
		Country:            []string{"SA"},
		Organization:       []string{profile.LegalName},
		OrganizationalUnit: []string{profile.CRNumber},
		CommonName:         profile.CommonName,
		SerialNumber:       serialNumber,
		ExtraNames: []pkix.AttributeTypeAndValue{
			{Type: oidUID, Value: profile.VATNumber},
		},
	}

	sanExt, err := s.buildSubjectAltName(profile)
	if err != nil {
		return nil, err
	}
	templateExt, err := s.buildTemplateNameExtension()
	if err != nil {
		return nil, err
	}

	tpl := &x509.CertificateRequest{
		Subject:            subject,
		SignatureAlgorithm: x509.ECDSAWithSHA256,
		ExtraExtensions:    []pkix.Extension{templateExt, sanExt},
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, tpl, key)
	if err != nil {
		return nil, &domain.CryptoError{Op: "crear CSR", Err: err}
	}

	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, &domain.CryptoError{Op: "serializar clave privada", Err: err}
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, &domain.CryptoError{Op: "serializar clave pública", Err: err}
	}

	return &GeneratedCredential{
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})),
		PublicKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		CSRPEM:        string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})),
	}, nil
}

func (s *CSRGeneratorService) validateProfile(p *entity.CompanyProfile) error {
	if p == nil {
		return domain.NewValidationError("profile", "el perfil de la empresa es obligatorio")
	}
	required := []struct{ field, value string }{
		{"vat_number", p.VATNumber},
		{"cr_number", p.CRNumber},
		{"legal_name", p.LegalName},
		{"common_name", p.CommonName},
		{"solution_name", p.SolutionName},
		{"solution_version", p.SolutionVersion},
		{"business_category", p.BusinessCategory},
		{"street", p.Street},
		{"building_number", p.BuildingNumber},
		{"city", p.City},
		{"postal_zone", p.PostalZone},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.NewValidationError(r.field, "el campo es obligatorio para generar el CSR")
		}
	}
	return nil
}

// buildSubjectAltName arma la extensión SAN con un único GeneralName dirName
// que contiene la dirección registrada y la categoría de negocio.
func (s *CSRGeneratorService) buildSubjectAltName(p *entity.CompanyProfile) (pkix.Extension, error) {
	address := fmt.Sprintf("%s %s, %s, %s %s", p.Street, p.BuildingNumber, p.CitySubdivision, p.City, p.PostalZone)
	rdn := pkix.RDNSequence{
		{pkix.AttributeTypeAndValue{Type: oidRegisteredAddress, Value: address}},
		{pkix.AttributeTypeAndValue{Type: oidBusinessCategory, Value: p.BusinessCategory}},
	}
	dirName, err := asn1.Marshal(rdn)
	if err != nil {
		return pkix.Extension{}, &domain.CryptoError{Op: "serializar dirName del SAN", Err: err}
	}
	generalNames, err := asn1.Marshal([]asn1.RawValue{{
		Class:      asn1.ClassContextSpecific,
		Tag:        4, // GeneralName: directoryName
		IsCompound: true,
		Bytes:      dirName,
	}})
	if err != nil {
		return pkix.Extension{}, &domain.CryptoError{Op: "serializar SAN", Err: err}
	}
	return pkix.Extension{Id: oidSubjectAltName, Value: generalNames}, nil
}

func (s *CSRGeneratorService) buildTemplateNameExtension() (pkix.Extension, error) {
	name := templateNameSandbox
	if s.live {
		name = templateNameProduction
	}
	value, err := asn1.MarshalWithParams(name, "printable")
	if err != nil {
		return pkix.Extension{}, &domain.CryptoError{Op: "serializar template name", Err: err}
	}
	return pkix.Extension{Id: oidCertificateTemplateName, Value: value}, nil
}
