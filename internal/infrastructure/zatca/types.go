// Package zatca implementa el núcleo de facturación electrónica ZATCA fase 2:
// generación de CSR, construcción del documento UBL 2.1, canonicalización y
// hash, codificación QR TLV y cliente HTTP contra la pasarela Fatoora.
package zatca

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem es una línea de la factura. Cantidad y precio llegan sin redondear;
// el builder aplica las reglas de formato (2/4/6 decimales) al renderizar.
type LineItem struct {
	Name         string
	Quantity     decimal.Decimal
	NetUnitPrice decimal.Decimal // precio unitario sin IVA
	TaxAmount    decimal.Decimal // IVA de la línea (0 = exenta, categoría O)
}

// Party identifica a una de las partes del documento (vendedor o comprador)
// con sus componentes de dirección del esquema UBL.
type Party struct {
	RegistrationName   string
	VATNumber          string // CompanyID del PartyTaxScheme (vacío en comprador B2C)
	IdentificationID   string // cbc:ID del PartyIdentification (CRN del vendedor)
	SchemeID           string // "CRN" vendedor, "SAG" comprador
	Street             string
	BuildingNumber     string
	PlotIdentification string
	CitySubdivision    string
	City               string
	PostalZone         string
	Country            string
}

// InvoiceHeader son los identificadores y banderas del documento.
type InvoiceHeader struct {
	SerialNumber        string    // cbc:ID
	UUID                string    // cbc:UUID (v4, único por envío)
	IssuedAt            time.Time // fecha/hora de emisión
	POS                 bool      // true = simplificada (0211010, reporting)
	TypeCode            string    // 388 | 381 | 383
	PreviousInvoiceHash string    // PIH; génesis en la primera factura del dispositivo
	Counter             int64     // ICV
	BillingReferenceID  string    // referencia a la factura original (notas 381/383)
}

// BuildContext agrupa todos los datos necesarios para construir el XML.
// Reemplaza al diccionario de campos dinámicos del flujo original: cada campo
// requerido está tipado y la validación es explícita.
type BuildContext struct {
	Header        InvoiceHeader
	Seller        Party
	Customer      Party
	Lines         []LineItem
	GrandTotal    decimal.Decimal // total con IVA
	TaxTotal      decimal.Decimal // IVA total del documento
	OrderDiscount decimal.Decimal // descuento a nivel de documento (0 si no aplica)
}

// NetTotal deriva el neto del documento: total con IVA menos IVA más descuento,
// en valor absoluto (las notas crédito llegan con signos invertidos).
func (c *BuildContext) NetTotal() decimal.Decimal {
	net := c.GrandTotal.Round(2).Sub(c.TaxTotal.Round(2)).Add(c.OrderDiscount.Round(2))
	return net.Abs()
}
