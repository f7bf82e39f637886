package invoice

import (
	"strconv"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/go-pdf/fpdf"
)

const (
	pageLeft  = 18.0
	pageWidth = 174.0
	rowHeight = 7.0
)

func (r *PDFRenderer) layout(in goDeliver.InvoiceInput) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageLeft, 18, pageLeft)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetTitle("Invoice "+in.InvoiceID, true)
	pdf.SetCreator(r.branding.StoreName, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	currency := in.Currency
	if currency == "" {
		currency = "Rs."
	}
	taxLabel := in.TaxLabel
	if taxLabel == "" {
		taxLabel = "Tax"
	}

	// header
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(pageWidth, 10, tr(r.branding.StoreName), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(pageWidth, 7, "Invoice", "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(pageWidth, 5, tr(r.branding.ContactEmail), "", 1, "R", false, 0, "")
	pdf.CellFormat(pageWidth, 5, tr(r.branding.ContactPhone), "", 1, "R", false, 0, "")

	y := pdf.GetY() + 4
	pdf.SetDrawColor(51, 51, 51)
	pdf.SetLineWidth(0.4)
	pdf.Line(pageLeft, y, pageLeft+pageWidth, y)
	pdf.SetY(y + 5)

	// bill to and invoice details side by side
	top := pdf.GetY()
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(90, 5, "BILL TO", "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(90, 5, tr(in.Purchaser.Name), "", 2, "L", false, 0, "")
	pdf.CellFormat(90, 5, tr(in.Purchaser.Email), "", 2, "L", false, 0, "")

	pdf.SetXY(pageLeft+105, top)
	details := [][2]string{
		{"Invoice No:", "#" + in.InvoiceID},
		{"Date:", in.IssuedAt.Format("02/01/2006")},
		{"Due Date:", "Due on receipt"},
	}
	for _, d := range details {
		pdf.SetX(pageLeft + 105)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(22, 5, d[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(47, 5, tr(d[1]), "", 1, "L", false, 0, "")
	}
	pdf.SetY(top + 22)

	// line table
	cols := []float64{12, 72, 20, 35, 35}
	pdf.SetFillColor(44, 62, 80)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 10)
	headers := []string{"No", "Description", "Qty", "Price (" + currency + ")", "Amount (" + currency + ")"}
	aligns := []string{"L", "L", "C", "R", "R"}
	for i, h := range headers {
		pdf.CellFormat(cols[i], rowHeight+1, tr(h), "", 0, aligns[i], true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetFillColor(248, 249, 250)
	for i, line := range in.Lines {
		fill := i%2 == 0
		cells := []string{
			strconv.Itoa(i + 1),
			line.Item,
			strconv.Itoa(line.Quantity),
			line.UnitPrice.StringFixed(2),
			line.Amount().StringFixed(2),
		}
		for j, c := range cells {
			pdf.CellFormat(cols[j], rowHeight, tr(c), "", 0, aligns[j], fill, 0, "")
		}
		pdf.Ln(-1)
	}

	// totals
	pdf.Ln(6)
	totals := [][2]string{
		{"Subtotal:", currency + " " + in.Totals.Subtotal.StringFixed(2)},
		{taxLabel + ":", currency + " " + in.Totals.Tax.StringFixed(2)},
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, t := range totals {
		pdf.SetX(pageLeft + 94)
		pdf.CellFormat(45, 6, tr(t[0]), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, tr(t[1]), "", 1, "R", false, 0, "")
	}
	y = pdf.GetY() + 2
	pdf.Line(pageLeft+94, y, pageLeft+pageWidth, y)
	pdf.SetY(y + 2)
	pdf.SetX(pageLeft + 94)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(45, 7, "Total:", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, tr(currency+" "+in.Totals.Total.StringFixed(2)), "", 1, "R", false, 0, "")

	// payment information
	pdf.Ln(8)
	y = pdf.GetY()
	pdf.SetDrawColor(204, 204, 204)
	pdf.SetLineWidth(0.2)
	pdf.Rect(pageLeft, y, 88, 26, "D")
	pdf.SetXY(pageLeft+3, y+3)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(82, 5, "Payment Information", "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(82, 5, tr("Bank Name: "+r.branding.BankName), "", 2, "L", false, 0, "")
	pdf.CellFormat(82, 5, tr("Account No: "+r.branding.AccountNo), "", 2, "L", false, 0, "")
	pdf.CellFormat(82, 5, tr("IFSC Code: "+r.branding.IFSC), "", 2, "L", false, 0, "")
	pdf.SetY(y + 34)

	// one-time passwords
	pdf.SetX(pageLeft)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(pageWidth, 6, "Your Download Passwords (One-Time Use Only)", "", 1, "L", false, 0, "")
	pdf.SetFont("Courier", "", 10)
	for _, s := range in.Secrets {
		pdf.CellFormat(pageWidth, 5, tr(s.Item+": "+s.Secret), "", 1, "L", false, 0, "")
	}

	// footer
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(pageWidth, 6, "Thank you for your business!", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(pageWidth/2, 5, "Terms & Conditions Apply", "", 0, "L", false, 0, "")
	pdf.CellFormat(pageWidth/2, 5, tr(r.branding.Copyright), "", 1, "R", false, 0, "")

	return pdf
}
