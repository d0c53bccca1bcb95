// Package zatca contiene catálogos y constantes alineados a la Fatoora SDK
// de la autoridad tributaria saudí (ZATCA, e-invoicing fase 2).
package zatca

// =============================================================================
// Tipos de documento (UN/EDIFACT 1001, subconjunto aceptado por ZATCA)
// =============================================================================

const (
	// TypeCodeInvoice factura de venta (388).
	TypeCodeInvoice = "388"
	// TypeCodeCreditNote nota crédito / devolución (381).
	TypeCodeCreditNote = "381"
	// TypeCodeDebitNote nota débito (383).
	TypeCodeDebitNote = "383"
)

// =============================================================================
// Códigos de transacción (atributo name del cbc:InvoiceTypeCode).
// Posición 1-2: subtipo (01 estándar B2B, 02 simplificada B2C); el resto son
// banderas de la especificación ZATCA (terceros, nominal, export, summary...).
// =============================================================================

const (
	// TransactionSimplified factura simplificada (POS, B2C).
	TransactionSimplified = "0211010"
	// TransactionStandard factura estándar (B2B, clearance).
	TransactionStandard = "0111010"

	// SubtypeStandard y SubtypeSimplified son los prefijos de subtipo.
	SubtypeStandard   = "01"
	SubtypeSimplified = "02"
)

// =============================================================================
// Otros catálogos UBL usados en el documento
// =============================================================================

const (
	// CurrencySAR riyal saudí; ZATCA exige SAR en DocumentCurrencyCode y TaxCurrencyCode.
	CurrencySAR = "SAR"

	// PaymentMeansCash código UN/ECE 4461 (42 = pago a cuenta bancaria).
	PaymentMeansCash = "42"

	// UnitPiece código de unidad para líneas (PCE = pieza).
	UnitPiece = "PCE"

	// TaxCategoryStandard categoría S: IVA estándar 15%.
	TaxCategoryStandard = "S"
	// TaxCategoryOutOfScope categoría O: fuera del alcance del IVA.
	TaxCategoryOutOfScope = "O"
	// TaxExemptionReasonCode y TaxExemptionReason para la categoría O.
	TaxExemptionReasonCode = "VATEX-SA-OOS"
	TaxExemptionReason     = "Not Subject To VAT"

	// StandardVATPercent porcentaje de IVA estándar en KSA.
	StandardVATPercent = "15.00"
)

// GenesisPreviousHash es el PIH de la primera factura de cada dispositivo:
// base64 del SHA-256 de "0" en hex, constante fija del SDK de la autoridad.
const GenesisPreviousHash = "NWZlY2ViNjZmZmM4NmYzOGQ5NTI3ODZjNmQ2OTZjNzljMmRiYzIzOWRkNGU5MWI0NjcyOWQ3M2EyN2ZiNTdlOQ=="

// =============================================================================
// Endpoints de la pasarela Fatoora
// =============================================================================

const (
	// BaseURLProduction pasarela productiva (core).
	BaseURLProduction = "https://gw-fatoora.zatca.gov.sa/e-invoicing/core"
	// BaseURLSandbox portal de desarrollo (simulación/habilitación).
	BaseURLSandbox = "https://gw-fatoora.zatca.gov.sa/e-invoicing/developer-portal"

	// Rutas relativas de la API.
	PathComplianceCSID    = "/compliance"
	PathComplianceInvoice = "/compliance/invoices"
	PathProductionCSID    = "/production/csids"
	PathReporting         = "/invoices/reporting/single"
	PathClearance         = "/invoices/clearance/single"
)

// DispositionIssued es el dispositionMessage que la autoridad devuelve cuando
// emite (o renueva) un CSID; cualquier otro valor es rechazo.
const DispositionIssued = "ISSUED"

// Estados de aceptación del envío de facturas. La autoridad puede responder
// 2xx con NOT_REPORTED/NOT_CLEARED: solo estos valores son aceptación.
const (
	// StatusReported reportingStatus de una simplificada aceptada.
	StatusReported = "REPORTED"
	// StatusCleared clearanceStatus de una estándar liquidada.
	StatusCleared = "CLEARED"
)
