// Package invoicepdf renders invoices as A4 PDFs and archives them to
// object storage.
package invoicepdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/linehub/billing/pkg/money"
	"github.com/linehub/billing/pkg/qrcode"
	"github.com/linehub/billing/svc/billing"
)

var (
	ErrFailedToRender = errors.New("failed to render invoice pdf")
	ErrEmptyInvoice   = errors.New("invoice is required")
)

// Issuer is the seller block printed on every invoice.
type Issuer struct {
	CompanyName  string `env:"COMPANY_NAME" envDefault:"LineHub"`
	Address      string `env:"COMPANY_ADDRESS"`
	VATNumber    string `env:"COMPANY_VAT_NUMBER"`
	SupportEmail string `env:"SUPPORT_EMAIL" envDefault:"support@linehub.example"`
}

type Renderer struct {
	issuer Issuer
}

func NewRenderer(issuer Issuer) *Renderer {
	return &Renderer{issuer: issuer}
}

const (
	margin   = 15.0
	qrSizeMM = 35.0
)

// Render implements billing.Renderer.
func (r *Renderer) Render(ctx context.Context, doc billing.Document) ([]byte, error) {
	if doc.Invoice == nil {
		return nil, ErrEmptyInvoice
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inv := doc.Invoice

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetTitle("Invoice "+inv.Number, true)
	pdf.SetAuthor(r.issuer.CompanyName, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// Header.
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(100, 10, tr(r.issuer.CompanyName), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	if r.issuer.Address != "" {
		pdf.MultiCell(100, 4.5, tr(r.issuer.Address), "", "L", false)
	}
	if r.issuer.VATNumber != "" {
		pdf.CellFormat(100, 4.5, tr("VAT number: "+r.issuer.VATNumber), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// Customer and invoice details side by side.
	top := pdf.GetY()
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(90, 5, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if doc.Profile != nil {
		pdf.CellFormat(90, 5, tr(doc.Profile.Name), "", 1, "L", false, 0, "")
		pdf.CellFormat(90, 5, tr(doc.Profile.Email), "", 1, "L", false, 0, "")
		if doc.Profile.AccountNumber != "" {
			pdf.CellFormat(90, 5, tr("Account: "+doc.Profile.AccountNumber), "", 1, "L", false, 0, "")
		}
	}

	details := [][2]string{
		{"Invoice number", inv.Number},
		{"Issue date", inv.CreatedAt.Format("02 Jan 2006")},
		{"Billing period", inv.BillingPeriodStart.Format("02 Jan 2006") + " - " + inv.BillingPeriodEnd.Format("02 Jan 2006")},
		{"Due date", inv.DueDate.Format("02 Jan 2006")},
	}
	pdf.SetY(top)
	for _, d := range details {
		pdf.SetX(110)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(30, 5, d[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, tr(d[1]), "", 1, "R", false, 0, "")
	}
	pdf.Ln(10)

	// Line items.
	widths := []float64{100, 20, 30, 30}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 239, 243)
	for i, h := range []string{"Description", "Qty", "Unit price", "Amount"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 8, h, "B", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, l := range inv.Lines {
		pdf.CellFormat(widths[0], 7, tr(l.Description), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, strconv.Itoa(l.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, l.UnitPrice.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, l.Amount.StringFixed(2), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	// Totals.
	totals := [][2]string{{"Subtotal", money.Format(inv.Subtotal, inv.Currency)}}
	if inv.VATAmount.IsPositive() {
		totals = append(totals, [2]string{fmt.Sprintf("VAT (%s%%)", inv.VATRate.String()), money.Format(inv.VATAmount, inv.Currency)})
	}
	totals = append(totals, [2]string{"Total due", money.Format(inv.Total, inv.Currency)})
	for i, t := range totals {
		style := ""
		if i == len(totals)-1 {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.SetX(110)
		pdf.CellFormat(50, 7, t[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, tr(t[1]), "", 1, "R", false, 0, "")
	}
	pdf.Ln(8)

	// Pay link with QR code.
	if doc.PayLink != "" {
		png, err := qrcode.PNG(doc.PayLink, qrcode.WithSize(320))
		if err != nil {
			return nil, errors.Join(ErrFailedToRender, err)
		}
		y := pdf.GetY()
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("paylink", opts, bytes.NewReader(png))
		pdf.ImageOptions("paylink", margin, y, qrSizeMM, qrSizeMM, false, opts, 0, "")

		pdf.SetXY(margin+qrSizeMM+5, y+4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 6, "Pay online", "", 2, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 4.5, "Scan the code or visit the link below to pay by card.", "", "L", false)
		pdf.SetX(margin + qrSizeMM + 5)
		pdf.SetTextColor(11, 105, 163)
		pdf.CellFormat(0, 5, doc.PayLink, "", 1, "L", false, 0, doc.PayLink)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetY(y + qrSizeMM + 4)
	}

	if r.issuer.SupportEmail != "" {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, tr("Questions about this invoice? Contact "+r.issuer.SupportEmail), "", 1, "C", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return nil, errors.Join(ErrFailedToRender, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Join(ErrFailedToRender, err)
	}
	return buf.Bytes(), nil
}
