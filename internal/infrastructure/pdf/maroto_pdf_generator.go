// Package pdf implementa la representación gráfica de la factura
// electrónica ZATCA fase 2: cabecera bilingüe, escalares fiscales, la cadena
// de hashes y el código QR obligatorio.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón social + VAT  │  N° Factura + Fecha           │
//	│  ─────────────────────────────────────────────────────────   │
//	│  TOTALES: Total con IVA / IVA                                 │
//	│  ─────────────────────────────────────────────────────────   │
//	│  CADENA: ICV, Invoice Hash, Previous Invoice Hash             │
//	│  ─────────────────────────────────────────────────────────   │
//	│  FOOTER: QR TLV + leyenda                                     │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 102, Blue: 78}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator genera la rendición PDF de un envío usando Maroto v2.
// Los escalares del vendedor, la fecha y los totales se recuperan del propio
// QR TLV del envío: el PDF refleja exactamente lo que el QR declara.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateSubmissionPDF genera el PDF de un envío y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateSubmissionPDF(
	_ context.Context,
	submission *entity.Submission,
	device *entity.Device,
) ([]byte, error) {
	fields, err := zatca.DecodeTLV(submission.QRCode)
	if err != nil {
		return nil, fmt.Errorf("pdf: decodificar QR: %w", err)
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Factura Electrónica ZATCA", true).
		WithAuthor(device.Profile.LegalName, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(submission, fields))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(totalsRow(fields))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	for _, r := range chainRows(submission) {
		m.AddRows(r)
	}
	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(qrFooterRow(submission))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: razón social + VAT (izq) y número de factura + fecha (der).
func headerRow(submission *entity.Submission, fields map[byte][]byte) core.Row {
	sellerName := string(fields[1])
	vatNumber := string(fields[2])
	issuedAt := string(fields[3])
	if ts, err := time.Parse(time.RFC3339, issuedAt); err == nil {
		issuedAt = ts.Format("02/01/2006 15:04")
	}

	return row.New(18).Add(
		col.New(7).Add(
			text.New(sellerName, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("VAT: "+vatNumber, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("TAX INVOICE / فاتورة ضريبية", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(submission.InvoiceNumber, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+issuedAt, props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// totalsRow: total con IVA e IVA, tal como los declara el QR.
func totalsRow(fields map[byte][]byte) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}

	return row.New(14).Add(
		col.New(5),
		col.New(4).Add(
			label("IVA (VAT):"),
			label("TOTAL (con IVA):"),
		),
		col.New(3).Add(
			value("SAR "+string(fields[5])),
			value("SAR "+string(fields[4])),
		),
	)
}

// chainRows: ICV y los hashes de la cadena, partidos en fragmentos legibles.
func chainRows(submission *entity.Submission) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("INTEGRIDAD DEL DOCUMENTO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
		row.New(5).Add(col.New(12).Add(
			text.New(fmt.Sprintf("ICV: %d   |   UUID: %s", submission.ICV, submission.UUID), props.Text{
				Size: 7, Top: 1, Color: colorGray,
			}),
		)),
	}
	rows = append(rows, hashRows("Invoice Hash:", submission.InvoiceHash)...)
	rows = append(rows, hashRows("Previous Invoice Hash (PIH):", submission.PreviousInvoiceHash)...)
	return rows
}

func hashRows(label, hash string) []core.Row {
	rows := []core.Row{
		row.New(5).Add(col.New(12).Add(
			text.New(label, props.Text{Style: fontstyle.Bold, Size: 7, Top: 1}),
		)),
	}
	for _, chunk := range splitEvery(hash, 80) {
		rows = append(rows, row.New(4).Add(col.New(12).Add(
			text.New(chunk, props.Text{Size: 6.5, Color: colorGray, Top: 0.5, Left: 2}),
		)))
	}
	return rows
}

// qrFooterRow: el QR TLV (base64 tal cual, como exige la autoridad) + leyenda.
func qrFooterRow(submission *entity.Submission) core.Row {
	return row.New(50).Add(
		col.New(4).Add(code.NewQr(submission.QRCode, props.Rect{
			Percent: 95,
			Center:  true,
		})),
		col.New(8).Add(
			text.New("Escanea el código QR con la app VAT de ZATCA\npara validar esta factura.", props.Text{
				Size: 8, Top: 4, Left: 3, Color: colorGray,
			}),
			text.New("FACTURA ELECTRÓNICA\nZATCA FASE 2", props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 22,
				Left: 3, Color: colorPrimary,
			}),
		),
	)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// splitEvery divide s en trozos de max n caracteres.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
