package zatca

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/pkg/zatca"
)

// Namespaces oficiales UBL 2.1 declarados en la raíz del Invoice.
// El documento se serializa SIEMPRE en forma prefijada (cbc:, cac:, ext:):
// el hash y la firma dependen de los bytes exactos, así que los prefijos
// van incluidos en el nombre local de cada token.
const (
	NsInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NsCac     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NsCbc     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	NsExt     = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
)

// Marcadores que el firmador reemplaza sobre el XML ya serializado. Viven
// dentro de ext:UBLExtensions y del AdditionalDocumentReference QR, que el
// canonicalizador elimina antes de calcular el hash, por lo que nunca
// participan del digest.
const (
	PlaceholderUBLExtensions = "SET_UBL_EXTENSIONS_STRING"
	PlaceholderQRCode        = "SET_QR_CODE_DATA"
)

// XMLBuilderService construye el documento Invoice UBL 2.1 (sin firma) con
// los marcadores de firma y QR pendientes de inyección.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// renderedLine es una línea ya redondeada y clasificada por categoría de IVA.
type renderedLine struct {
	Name       string
	Quantity   decimal.Decimal
	Total      decimal.Decimal // base imponible de la línea, 2 decimales
	Tax        decimal.Decimal
	CategoryID string // S | O
	Percent    string // "15" | "0"
}

// Build genera el []byte del documento Invoice según UBL 2.1 y las reglas de
// redondeo de ZATCA. Valida el contexto antes de serializar.
func (s *XMLBuilderService) Build(ctx *BuildContext) ([]byte, error) {
	if err := s.validate(ctx); err != nil {
		return nil, err
	}

	lines, taxedBucket, exemptBucket := s.computeLines(ctx)

	grandTotal := ctx.GrandTotal.Abs().Round(2)
	taxTotal := ctx.TaxTotal.Abs().Round(2)
	discount := ctx.OrderDiscount.Abs().Round(2)
	netTotal := ctx.NetTotal()

	// Asignación del descuento a nivel de documento: primero al cubo gravado
	// si cabe y hay IVA; si no, al cubo exento. La categoría resultante viaja
	// en el cac:AllowanceCharge.
	allowanceCategory, allowancePercent := "", ""
	if discount.IsPositive() {
		switch {
		case discount.LessThan(taxedBucket) && taxTotal.IsPositive():
			taxedBucket = taxedBucket.Sub(discount)
			allowanceCategory, allowancePercent = zatca.TaxCategoryStandard, "15"
		case discount.LessThan(exemptBucket) && taxTotal.IsPositive():
			exemptBucket = exemptBucket.Sub(discount)
			allowanceCategory, allowancePercent = zatca.TaxCategoryOutOfScope, "0"
		case taxTotal.IsZero():
			exemptBucket = exemptBucket.Sub(discount)
			allowanceCategory, allowancePercent = zatca.TaxCategoryOutOfScope, "0"
		}
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")

	root := xml.StartElement{
		Name: xml.Name{Local: "Invoice"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: NsInvoice},
			{Name: xml.Name{Local: "xmlns:cac"}, Value: NsCac},
			{Name: xml.Name{Local: "xmlns:cbc"}, Value: NsCbc},
			{Name: xml.Name{Local: "xmlns:ext"}, Value: NsExt},
		},
	}
	_ = enc.EncodeToken(root)

	// ext:UBLExtensions siempre como primer hijo: contiene solo el marcador
	// que el firmador reemplaza por el bloque XAdES completo.
	writeElem(enc, "ext:UBLExtensions", PlaceholderUBLExtensions)

	writeCbc(enc, "ProfileID", "reporting:1.0")
	writeCbc(enc, "ID", ctx.Header.SerialNumber)
	writeCbc(enc, "UUID", ctx.Header.UUID)
	writeCbc(enc, "IssueDate", ctx.Header.IssuedAt.Format("2006-01-02"))
	writeCbc(enc, "IssueTime", ctx.Header.IssuedAt.Format("15:04:05"))
	writeCbcWithAttr(enc, "InvoiceTypeCode", ctx.Header.TypeCode, "name", s.transactionCode(ctx))
	writeCbc(enc, "DocumentCurrencyCode", zatca.CurrencySAR)
	writeCbc(enc, "TaxCurrencyCode", zatca.CurrencySAR)

	// Referencia a la factura original, solo para notas crédito/débito.
	if ctx.Header.TypeCode != zatca.TypeCodeInvoice && ctx.Header.BillingReferenceID != "" {
		start(enc, "cac:BillingReference")
		start(enc, "cac:InvoiceDocumentReference")
		writeCbc(enc, "ID", ctx.Header.BillingReferenceID)
		end(enc, "cac:InvoiceDocumentReference")
		end(enc, "cac:BillingReference")
	}

	// Los tres AdditionalDocumentReference obligatorios, en este orden:
	// ICV, PIH y QR. El tercero lo elimina el canonicalizador al calcular
	// el hash (por eso el QR puede inyectarse después de firmar).
	start(enc, "cac:AdditionalDocumentReference")
	writeCbc(enc, "ID", "ICV")
	writeCbc(enc, "UUID", strconv.FormatInt(ctx.Header.Counter, 10))
	end(enc, "cac:AdditionalDocumentReference")

	start(enc, "cac:AdditionalDocumentReference")
	writeCbc(enc, "ID", "PIH")
	start(enc, "cac:Attachment")
	writeCbcWithAttr(enc, "EmbeddedDocumentBinaryObject", ctx.Header.PreviousInvoiceHash, "mimeCode", "text/plain")
	end(enc, "cac:Attachment")
	end(enc, "cac:AdditionalDocumentReference")

	start(enc, "cac:AdditionalDocumentReference")
	writeCbc(enc, "ID", "QR")
	start(enc, "cac:Attachment")
	writeCbcWithAttr(enc, "EmbeddedDocumentBinaryObject", PlaceholderQRCode, "mimeCode", "text/plain")
	end(enc, "cac:Attachment")
	end(enc, "cac:AdditionalDocumentReference")

	// Bloque cac:Signature informativo (también excluido del hash).
	start(enc, "cac:Signature")
	writeCbc(enc, "ID", "urn:oasis:names:specification:ubl:signature:Invoice")
	writeCbc(enc, "SignatureMethod", "urn:oasis:names:specification:ubl:dsig:enveloped:xades")
	end(enc, "cac:Signature")

	s.writeParty(enc, "cac:AccountingSupplierParty", &ctx.Seller, true)
	s.writeParty(enc, "cac:AccountingCustomerParty", &ctx.Customer, false)

	start(enc, "cac:Delivery")
	writeCbc(enc, "ActualDeliveryDate", ctx.Header.IssuedAt.Format("2006-01-02"))
	writeCbc(enc, "LatestDeliveryDate", ctx.Header.IssuedAt.Format("2006-01-02"))
	end(enc, "cac:Delivery")

	start(enc, "cac:PaymentMeans")
	writeCbc(enc, "PaymentMeansCode", zatca.PaymentMeansCash)
	switch ctx.Header.TypeCode {
	case zatca.TypeCodeDebitNote:
		writeCbc(enc, "InstructionNote", "TERMINATION")
	case zatca.TypeCodeCreditNote:
		writeCbc(enc, "InstructionNote", "Returned Items")
	}
	end(enc, "cac:PaymentMeans")

	if discount.IsPositive() {
		start(enc, "cac:AllowanceCharge")
		writeCbc(enc, "ChargeIndicator", "false")
		writeCbc(enc, "AllowanceChargeReason", "Discount")
		writeAmount(enc, "cbc:Amount", discount.StringFixed(2))
		start(enc, "cac:TaxCategory")
		writeCbc(enc, "ID", allowanceCategory)
		writeCbc(enc, "Percent", allowancePercent)
		writeTaxScheme(enc, false)
		end(enc, "cac:TaxCategory")
		end(enc, "cac:AllowanceCharge")
	}

	s.writeTaxTotals(enc, taxTotal, taxedBucket, exemptBucket)
	s.writeMonetaryTotal(enc, netTotal, grandTotal, taxTotal, discount)

	for i, line := range lines {
		s.writeInvoiceLine(enc, i+1, line)
	}

	_ = enc.EncodeToken(root.End())
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *XMLBuilderService) validate(ctx *BuildContext) error {
	if ctx == nil {
		return domain.NewValidationError("context", "el contexto de construcción es obligatorio")
	}
	switch {
	case ctx.Header.SerialNumber == "":
		return domain.NewValidationError("serial_number", "el número de serie de la factura es obligatorio")
	case ctx.Header.UUID == "":
		return domain.NewValidationError("uuid", "el UUID de la factura es obligatorio")
	case ctx.Header.IssuedAt.IsZero():
		return domain.NewValidationError("issued_at", "la fecha de emisión es obligatoria")
	case ctx.Header.PreviousInvoiceHash == "":
		return domain.NewValidationError("previous_invoice_hash", "el hash de la factura anterior (PIH) es obligatorio")
	case ctx.Header.Counter <= 0:
		return domain.NewValidationError("counter", "el contador ICV debe ser mayor que cero")
	case ctx.Seller.RegistrationName == "":
		return domain.NewValidationError("seller.registration_name", "la razón social del vendedor es obligatoria")
	case ctx.Seller.VATNumber == "":
		return domain.NewValidationError("seller.vat_number", "el número de IVA del vendedor es obligatorio")
	case len(ctx.Lines) == 0:
		return domain.NewValidationError("lines", "la factura debe tener al menos una línea")
	}
	switch ctx.Header.TypeCode {
	case zatca.TypeCodeInvoice, zatca.TypeCodeCreditNote, zatca.TypeCodeDebitNote:
	default:
		return domain.NewValidationError("type_code", "el tipo de documento debe ser 388, 381 o 383")
	}
	if ctx.GrandTotal.IsNegative() || ctx.TaxTotal.IsNegative() {
		return domain.NewValidationError("totals", "el total y el IVA no pueden ser negativos")
	}
	for i, line := range ctx.Lines {
		if line.Quantity.IsZero() {
			return domain.NewValidationError("lines["+strconv.Itoa(i)+"].quantity", "la cantidad de la línea no puede ser cero")
		}
	}
	return nil
}

// computeLines redondea cada línea a 2 decimales, acumula los cubos gravado y
// exento y concilia la deriva de redondeo contra el neto del documento en la
// última línea.
func (s *XMLBuilderService) computeLines(ctx *BuildContext) (lines []renderedLine, taxedBucket, exemptBucket decimal.Decimal) {
	netTotal := ctx.NetTotal()
	allTotal := decimal.Zero

	lines = make([]renderedLine, 0, len(ctx.Lines))
	for i, item := range ctx.Lines {
		lineTotal := item.NetUnitPrice.Mul(item.Quantity).Abs().Round(2)
		allTotal = allTotal.Add(lineTotal)

		// La última línea absorbe la diferencia acumulada de redondeo.
		if i == len(ctx.Lines)-1 && !allTotal.Equal(netTotal) {
			lineTotal = lineTotal.Add(netTotal.Sub(allTotal)).Round(2)
		}

		lineTax := item.TaxAmount.Abs().Round(2)
		rl := renderedLine{
			Name:     item.Name,
			Quantity: item.Quantity.Abs(),
			Total:    lineTotal,
			Tax:      lineTax,
		}
		if lineTax.IsZero() {
			rl.CategoryID, rl.Percent = zatca.TaxCategoryOutOfScope, "0"
			exemptBucket = exemptBucket.Add(lineTotal)
		} else {
			rl.CategoryID, rl.Percent = zatca.TaxCategoryStandard, "15"
			taxedBucket = taxedBucket.Add(lineTotal)
		}
		if rl.Name == "" {
			rl.Name = "Item"
		}
		lines = append(lines, rl)
	}
	return lines, taxedBucket, exemptBucket
}

func (s *XMLBuilderService) transactionCode(ctx *BuildContext) string {
	if ctx.Header.POS {
		return zatca.TransactionSimplified
	}
	return zatca.TransactionStandard
}

// writeParty escribe AccountingSupplierParty o AccountingCustomerParty. El
// vendedor lleva CompanyID en el PartyTaxScheme; el comprador solo el esquema.
func (s *XMLBuilderService) writeParty(enc *xml.Encoder, wrapper string, p *Party, seller bool) {
	schemeID := p.SchemeID
	if schemeID == "" {
		if seller {
			schemeID = "CRN"
		} else {
			schemeID = "SAG"
		}
	}

	start(enc, wrapper)
	start(enc, "cac:Party")

	start(enc, "cac:PartyIdentification")
	writeCbcWithAttr(enc, "ID", p.IdentificationID, "schemeID", schemeID)
	end(enc, "cac:PartyIdentification")

	start(enc, "cac:PostalAddress")
	writeCbc(enc, "StreetName", p.Street)
	writeCbc(enc, "BuildingNumber", p.BuildingNumber)
	writeCbc(enc, "PlotIdentification", p.PlotIdentification)
	writeCbc(enc, "CitySubdivisionName", p.CitySubdivision)
	writeCbc(enc, "CityName", p.City)
	writeCbc(enc, "PostalZone", p.PostalZone)
	start(enc, "cac:Country")
	country := p.Country
	if country == "" {
		country = "SA"
	}
	writeCbc(enc, "IdentificationCode", country)
	end(enc, "cac:Country")
	end(enc, "cac:PostalAddress")

	start(enc, "cac:PartyTaxScheme")
	if seller {
		writeCbc(enc, "CompanyID", p.VATNumber)
	}
	writeTaxScheme(enc, false)
	end(enc, "cac:PartyTaxScheme")

	start(enc, "cac:PartyLegalEntity")
	writeCbc(enc, "RegistrationName", p.RegistrationName)
	end(enc, "cac:PartyLegalEntity")

	end(enc, "cac:Party")
	end(enc, wrapper)
}

// writeTaxTotals escribe los dos cac:TaxTotal: el primero con los subtotales
// por categoría (S con el monto de IVA, O con la razón de exención), el
// segundo solo con el IVA del documento.
func (s *XMLBuilderService) writeTaxTotals(enc *xml.Encoder, taxTotal, taxedBucket, exemptBucket decimal.Decimal) {
	start(enc, "cac:TaxTotal")
	writeAmount(enc, "cbc:TaxAmount", taxTotal.StringFixed(2))

	if taxedBucket.IsPositive() {
		start(enc, "cac:TaxSubtotal")
		writeAmount(enc, "cbc:TaxableAmount", taxedBucket.StringFixed(2))
		writeAmount(enc, "cbc:TaxAmount", taxTotal.StringFixed(2))
		start(enc, "cac:TaxCategory")
		writeCbcWithAttrs(enc, "ID", zatca.TaxCategoryStandard,
			xml.Attr{Name: xml.Name{Local: "schemeAgencyID"}, Value: "6"},
			xml.Attr{Name: xml.Name{Local: "schemeID"}, Value: "UN/ECE 5305"})
		writeCbc(enc, "Percent", zatca.StandardVATPercent)
		writeTaxScheme(enc, true)
		end(enc, "cac:TaxCategory")
		end(enc, "cac:TaxSubtotal")
	}

	if exemptBucket.IsPositive() {
		start(enc, "cac:TaxSubtotal")
		writeAmount(enc, "cbc:TaxableAmount", exemptBucket.StringFixed(2))
		writeAmount(enc, "cbc:TaxAmount", "0")
		start(enc, "cac:TaxCategory")
		writeCbc(enc, "ID", zatca.TaxCategoryOutOfScope)
		writeCbc(enc, "Percent", "0")
		writeCbc(enc, "TaxExemptionReasonCode", zatca.TaxExemptionReasonCode)
		writeCbc(enc, "TaxExemptionReason", zatca.TaxExemptionReason)
		writeTaxScheme(enc, false)
		end(enc, "cac:TaxCategory")
		end(enc, "cac:TaxSubtotal")
	}

	end(enc, "cac:TaxTotal")

	start(enc, "cac:TaxTotal")
	writeAmount(enc, "cbc:TaxAmount", taxTotal.StringFixed(2))
	end(enc, "cac:TaxTotal")
}

func (s *XMLBuilderService) writeMonetaryTotal(enc *xml.Encoder, netTotal, grandTotal, taxTotal, discount decimal.Decimal) {
	start(enc, "cac:LegalMonetaryTotal")
	writeAmount(enc, "cbc:LineExtensionAmount", netTotal.StringFixed(2))
	writeAmount(enc, "cbc:TaxExclusiveAmount", grandTotal.Sub(taxTotal).StringFixed(2))
	writeAmount(enc, "cbc:TaxInclusiveAmount", grandTotal.StringFixed(2))
	writeAmount(enc, "cbc:AllowanceTotalAmount", discount.StringFixed(2))
	writeAmount(enc, "cbc:PrepaidAmount", "0.00")
	writeAmount(enc, "cbc:PayableAmount", grandTotal.StringFixed(2))
	end(enc, "cac:LegalMonetaryTotal")
}

func (s *XMLBuilderService) writeInvoiceLine(enc *xml.Encoder, lineNum int, line renderedLine) {
	start(enc, "cac:InvoiceLine")
	writeCbc(enc, "ID", strconv.Itoa(lineNum))
	writeCbcWithAttr(enc, "InvoicedQuantity", line.Quantity.StringFixed(4), "unitCode", zatca.UnitPiece)
	writeAmount(enc, "cbc:LineExtensionAmount", line.Total.StringFixed(2))

	start(enc, "cac:TaxTotal")
	writeAmount(enc, "cbc:TaxAmount", line.Tax.StringFixed(2))
	writeAmount(enc, "cbc:RoundingAmount", line.Total.Add(line.Tax).StringFixed(2))
	end(enc, "cac:TaxTotal")

	start(enc, "cac:Item")
	writeCbc(enc, "Name", line.Name)
	start(enc, "cac:ClassifiedTaxCategory")
	writeCbc(enc, "ID", line.CategoryID)
	writeCbc(enc, "Percent", line.Percent)
	writeTaxScheme(enc, false)
	end(enc, "cac:ClassifiedTaxCategory")
	end(enc, "cac:Item")

	start(enc, "cac:Price")
	writeAmount(enc, "cbc:PriceAmount", line.Total.Div(line.Quantity).StringFixed(6))
	end(enc, "cac:Price")

	end(enc, "cac:InvoiceLine")
}

// writeTaxScheme escribe cac:TaxScheme/cbc:ID=VAT, con los atributos de
// esquema UN/ECE cuando lo exige el subtotal estándar.
func writeTaxScheme(enc *xml.Encoder, withScheme bool) {
	start(enc, "cac:TaxScheme")
	if withScheme {
		writeCbcWithAttrs(enc, "ID", "VAT",
			xml.Attr{Name: xml.Name{Local: "schemeAgencyID"}, Value: "6"},
			xml.Attr{Name: xml.Name{Local: "schemeID"}, Value: "UN/ECE 5153"})
	} else {
		writeCbc(enc, "ID", "VAT")
	}
	end(enc, "cac:TaxScheme")
}

func start(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
}

func end(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func writeElem(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func writeCbc(enc *xml.Encoder, local, value string) {
	writeElem(enc, "cbc:"+local, value)
}

func writeCbcWithAttr(enc *xml.Encoder, local, value, attrLocal, attrValue string) {
	writeCbcWithAttrs(enc, local, value, xml.Attr{Name: xml.Name{Local: attrLocal}, Value: attrValue})
}

func writeCbcWithAttrs(enc *xml.Encoder, local, value string, attrs ...xml.Attr) {
	name := xml.Name{Local: "cbc:" + local}
	_ = enc.EncodeToken(xml.StartElement{Name: name, Attr: attrs})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: name})
}

func writeAmount(enc *xml.Encoder, local, value string) {
	name := xml.Name{Local: local}
	_ = enc.EncodeToken(xml.StartElement{
		Name: name,
		Attr: []xml.Attr{{Name: xml.Name{Local: "currencyID"}, Value: zatca.CurrencySAR}},
	})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: name})
}
