package entity

import "time"

// Estados de un envío de factura a la autoridad.
const (
	SubmissionStatusBuilt    = "built"    // XML generado, sin firmar
	SubmissionStatusSigned   = "signed"   // firmado, pendiente de envío
	SubmissionStatusReported = "reported" // aceptada por el endpoint de reporting (simplificada)
	SubmissionStatusCleared  = "cleared"  // liquidada por el endpoint de clearance (estándar)
	SubmissionStatusFailed   = "failed"   // rechazada o fallo de generación
)

// Submission es el registro inmutable de una factura enviada: una por factura,
// no se modifica una vez reported/cleared. Forma la cadena de hashes del
// dispositivo vía PreviousInvoiceHash.
type Submission struct {
	ID                  string
	DeviceID            string
	InvoiceNumber       string
	UUID                string // v4, único por envío; viaja en cbc:UUID y en el body
	ICV                 int64  // contador secuencial del dispositivo
	InvoiceHash         string // base64(SHA-256 del documento canónico)
	PreviousInvoiceHash string // hash de la factura N-1 (génesis en la primera)
	SignedXML           string
	QRCode              string
	Status              string
	Warnings            []string
	Errors              []string
	RawResponse         []byte // respuesta cruda de la autoridad (auditoría)
	SubmittedAt         *time.Time
	CreatedAt           time.Time
}

// IsFinal indica si el registro ya no debe mutarse.
func (s *Submission) IsFinal() bool {
	return s.Status == SubmissionStatusReported || s.Status == SubmissionStatusCleared
}
