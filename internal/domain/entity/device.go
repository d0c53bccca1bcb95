package entity

import (
	"time"

	"github.com/jhoicas/zatca-api/pkg/zatca"
)

// Estados del ciclo de vida de un dispositivo ZATCA.
const (
	// DeviceStatusPending registrado localmente, CSR enviado pero sin CSID de cumplimiento.
	DeviceStatusPending = "pending"
	// DeviceStatusComplianceIssued la autoridad emitió el CSID de cumplimiento;
	// faltan las muestras y el intercambio por el CSID productivo.
	DeviceStatusComplianceIssued = "compliance-issued"
	// DeviceStatusActive CSID productivo emitido; el dispositivo puede facturar.
	DeviceStatusActive = "active"
)

// CompanyProfile son los datos fiscales del vendedor que viajan en el CSR y
// en cada documento. Todos los campos son obligatorios para el registro.
type CompanyProfile struct {
	VATNumber          string // número de IVA (15 dígitos, empieza y termina en 3)
	CRNumber           string // registro mercantil (OU del certificado)
	LegalName          string
	Street             string
	BuildingNumber     string
	PlotIdentification string
	CitySubdivision    string
	City               string
	PostalZone         string
	Country            string // "SA"
	BusinessCategory   string
	CommonName         string // CN del certificado (nombre del terminal/sucursal)
	SolutionName       string // nombre de la solución registrada ante la autoridad
	SolutionVersion    string
}

// Device es la credencial criptográfica de un punto de emisión.
// Solo el ciclo de vida (registro → muestras → CSID productivo) la muta;
// nunca se borra salvo por re-registro, que la reemplaza.
type Device struct {
	ID                 string
	Status             string // pending | compliance-issued | active
	RequestID          string // compliance_request_id devuelto al enviar el CSR
	DispositionMessage string
	SecurityToken      string // binarySecurityToken: certificado X.509 en base64
	Secret             string
	PrivateKeyPEM      string // llave privada EC, propiedad exclusiva del dispositivo
	PublicKeyPEM       string
	CSRPEM             string
	Profile            CompanyProfile
	Errors             []string // errores estructurados devueltos por la autoridad
	InvoiceCounter     int64    // ICV: contador secuencial de facturas del dispositivo
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsActive indica si el dispositivo tiene CSID productivo.
func (d *Device) IsActive() bool { return d.Status == DeviceStatusActive }

// Credentials devuelve el material que consumen el firmador y el cliente de
// la pasarela: token, secreto y llave privada.
func (d *Device) Credentials() zatca.Credential {
	return zatca.Credential{
		SecurityToken: d.SecurityToken,
		Secret:        d.Secret,
		PrivateKeyPEM: d.PrivateKeyPEM,
	}
}
