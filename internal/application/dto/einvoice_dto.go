// DTOs de la API HTTP: separan el contrato JSON de las entidades de dominio.

package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/zatca-api/internal/application/einvoice"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
)

// RegisterDeviceRequest es el alta de un dispositivo: OTP del portal Fatoora
// más el perfil fiscal de la empresa.
type RegisterDeviceRequest struct {
	OTP                string `json:"otp"`
	VATNumber          string `json:"vat_number"`
	CRNumber           string `json:"cr_number"`
	LegalName          string `json:"legal_name"`
	Street             string `json:"street"`
	BuildingNumber     string `json:"building_number"`
	PlotIdentification string `json:"plot_identification"`
	CitySubdivision    string `json:"city_subdivision"`
	City               string `json:"city"`
	PostalZone         string `json:"postal_zone"`
	Country            string `json:"country"`
	BusinessCategory   string `json:"business_category"`
	CommonName         string `json:"common_name"`
	SolutionName       string `json:"solution_name"`
	SolutionVersion    string `json:"solution_version"`
}

// Profile convierte la petición al perfil de dominio.
func (r *RegisterDeviceRequest) Profile() entity.CompanyProfile {
	return entity.CompanyProfile{
		VATNumber:          r.VATNumber,
		CRNumber:           r.CRNumber,
		LegalName:          r.LegalName,
		Street:             r.Street,
		BuildingNumber:     r.BuildingNumber,
		PlotIdentification: r.PlotIdentification,
		CitySubdivision:    r.CitySubdivision,
		City:               r.City,
		PostalZone:         r.PostalZone,
		Country:            r.Country,
		BusinessCategory:   r.BusinessCategory,
		CommonName:         r.CommonName,
		SolutionName:       r.SolutionName,
		SolutionVersion:    r.SolutionVersion,
	}
}

// DeviceResponse expone el estado del dispositivo sin material sensible: ni
// la clave privada ni el secreto salen por la API.
type DeviceResponse struct {
	ID                 string    `json:"id"`
	Status             string    `json:"status"`
	VATNumber          string    `json:"vat_number"`
	LegalName          string    `json:"legal_name"`
	RequestID          string    `json:"request_id,omitempty"`
	DispositionMessage string    `json:"disposition_message,omitempty"`
	InvoiceCounter     int64     `json:"invoice_counter"`
	Errors             []string  `json:"errors,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// FromDevice mapea la entidad a su representación pública.
func FromDevice(d *entity.Device) *DeviceResponse {
	return &DeviceResponse{
		ID:                 d.ID,
		Status:             string(d.Status),
		VATNumber:          d.Profile.VATNumber,
		LegalName:          d.Profile.LegalName,
		RequestID:          d.RequestID,
		DispositionMessage: d.DispositionMessage,
		InvoiceCounter:     d.InvoiceCounter,
		Errors:             d.Errors,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

// PartyRequest es el comprador del documento.
type PartyRequest struct {
	RegistrationName   string `json:"registration_name"`
	VATNumber          string `json:"vat_number,omitempty"`
	IdentificationID   string `json:"identification_id"`
	Street             string `json:"street"`
	BuildingNumber     string `json:"building_number"`
	PlotIdentification string `json:"plot_identification,omitempty"`
	CitySubdivision    string `json:"city_subdivision,omitempty"`
	City               string `json:"city"`
	PostalZone         string `json:"postal_zone"`
	Country            string `json:"country,omitempty"`
}

// LineItemRequest es una línea de la factura.
type LineItemRequest struct {
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	NetUnitPrice decimal.Decimal `json:"net_unit_price"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
}

// SubmitInvoiceRequest es la emisión de una factura sobre un dispositivo.
type SubmitInvoiceRequest struct {
	SerialNumber  string            `json:"serial_number"`
	IssuedAt      time.Time         `json:"issued_at,omitempty"`
	POS           bool              `json:"pos"`
	TypeCode      string            `json:"type_code,omitempty"`
	BillingRefID  string            `json:"billing_reference_id,omitempty"`
	Customer      PartyRequest      `json:"customer"`
	Lines         []LineItemRequest `json:"lines"`
	GrandTotal    decimal.Decimal   `json:"grand_total"`
	TaxTotal      decimal.Decimal   `json:"tax_total"`
	OrderDiscount decimal.Decimal   `json:"order_discount"`
}

// Input convierte la petición al input del caso de uso.
func (r *SubmitInvoiceRequest) Input(deviceID string) *einvoice.SubmitInvoiceInput {
	lines := make([]infrazatca.LineItem, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, infrazatca.LineItem{
			Name:         l.Name,
			Quantity:     l.Quantity,
			NetUnitPrice: l.NetUnitPrice,
			TaxAmount:    l.TaxAmount,
		})
	}
	return &einvoice.SubmitInvoiceInput{
		DeviceID:     deviceID,
		SerialNumber: r.SerialNumber,
		IssuedAt:     r.IssuedAt,
		POS:          r.POS,
		TypeCode:     r.TypeCode,
		BillingRefID: r.BillingRefID,
		Customer: infrazatca.Party{
			RegistrationName:   r.Customer.RegistrationName,
			VATNumber:          r.Customer.VATNumber,
			IdentificationID:   r.Customer.IdentificationID,
			Street:             r.Customer.Street,
			BuildingNumber:     r.Customer.BuildingNumber,
			PlotIdentification: r.Customer.PlotIdentification,
			CitySubdivision:    r.Customer.CitySubdivision,
			City:               r.Customer.City,
			PostalZone:         r.Customer.PostalZone,
			Country:            r.Customer.Country,
		},
		Lines:         lines,
		GrandTotal:    r.GrandTotal,
		TaxTotal:      r.TaxTotal,
		OrderDiscount: r.OrderDiscount,
	}
}

// SubmissionResponse expone un envío persistido. El XML firmado no viaja en
// el listado; se descarga aparte.
type SubmissionResponse struct {
	ID                  string     `json:"id"`
	DeviceID            string     `json:"device_id"`
	InvoiceNumber       string     `json:"invoice_number"`
	UUID                string     `json:"uuid"`
	ICV                 int64      `json:"icv"`
	InvoiceHash         string     `json:"invoice_hash"`
	PreviousInvoiceHash string     `json:"previous_invoice_hash"`
	QRCode              string     `json:"qr_code"`
	Status              string     `json:"status"`
	Warnings            []string   `json:"warnings,omitempty"`
	Errors              []string   `json:"errors,omitempty"`
	SubmittedAt         *time.Time `json:"submitted_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// FromSubmission mapea la entidad a su representación pública.
func FromSubmission(s *entity.Submission) *SubmissionResponse {
	return &SubmissionResponse{
		ID:                  s.ID,
		DeviceID:            s.DeviceID,
		InvoiceNumber:       s.InvoiceNumber,
		UUID:                s.UUID,
		ICV:                 s.ICV,
		InvoiceHash:         s.InvoiceHash,
		PreviousInvoiceHash: s.PreviousInvoiceHash,
		QRCode:              s.QRCode,
		Status:              string(s.Status),
		Warnings:            s.Warnings,
		Errors:              s.Errors,
		SubmittedAt:         s.SubmittedAt,
		CreatedAt:           s.CreatedAt,
	}
}
