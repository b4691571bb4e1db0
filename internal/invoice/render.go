// Package invoice renders order invoices as PDF and attaches them to orders.
package invoice

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/Amadou-dot/restockd/internal/orders"
)

// Company is the seller block printed in the header.
type Company struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

// Customer is the Bill To block.
type Customer struct {
	Name  string
	Email string
}

// Renderer lays out invoices on A4 pages.
type Renderer struct {
	Company  Company
	TaxRate  decimal.Decimal
	compress bool
}

func NewRenderer(company Company, taxRate decimal.Decimal) *Renderer {
	return &Renderer{Company: company, TaxRate: taxRate, compress: true}
}

// Filename is the object name an invoice is uploaded under.
func Filename(orderID string, now time.Time) string {
	return fmt.Sprintf("invoice-%s-%d.pdf", orderID, now.UnixMilli())
}

func money(d decimal.Decimal) string { return "$" + d.StringFixed(2) }

// Render draws the invoice for o. Tax is shown on the line subtotal; the
// printed total is the order's stored total.
func (r *Renderer) Render(o *orders.Order, c Customer) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetCreationDate(o.CreatedAt)
	pdf.SetTitle("Invoice "+o.ID, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "", 24)
	pdf.SetTextColor(40, 40, 40)
	pdf.Text(20, 30, "INVOICE")

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(100, 100, 100)
	for i, line := range []string{r.Company.Name, r.Company.Address, r.Company.Phone, r.Company.Email} {
		pdf.Text(120, 30+float64(i)*10, tr(line))
	}

	status := o.Status
	if status == "" {
		status = orders.StatusCompleted
	}
	pdf.SetTextColor(40, 40, 40)
	pdf.Text(20, 70, "Invoice #: "+o.ID)
	pdf.Text(20, 80, "Date: "+o.CreatedAt.Format("1/2/2006"))
	pdf.Text(20, 90, "Status: "+strings.ToUpper(status))

	pdf.Text(20, 110, "Bill To:")
	if c.Name != "" {
		pdf.Text(20, 120, tr(c.Name))
	}
	pdf.Text(20, 130, tr(c.Email))

	y := r.tableHeader(pdf, 150)
	subtotal := decimal.Zero
	for i, it := range o.Items {
		if y > 250 {
			pdf.AddPage()
			y = r.tableHeader(pdf, 20)
		}
		lineTotal := it.ProductPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(lineTotal)

		pdf.SetTextColor(40, 40, 40)
		pdf.Text(25, y, tr(truncate(it.ProductName, 50)))
		pdf.Text(125, y, fmt.Sprintf("%d", it.Quantity))
		pdf.Text(140, y, money(it.ProductPrice))
		pdf.Text(165, y, money(lineTotal))
		y += 10

		if i < len(o.Items)-1 {
			pdf.SetDrawColor(200, 200, 200)
			pdf.Line(20, y-5, 190, y-5)
		}
	}

	if y > 230 {
		pdf.AddPage()
		y = 20
	}
	y += 10
	pdf.SetDrawColor(0, 0, 0)
	pdf.Line(140, y, 190, y)

	y += 10
	pdf.SetFontSize(12)
	pdf.Text(140, y, "Subtotal:")
	pdf.Text(165, y, money(subtotal))

	y += 10
	pdf.Text(140, y, fmt.Sprintf("Tax (%s%%):", r.TaxRate.Shift(2).String()))
	pdf.Text(165, y, money(subtotal.Mul(r.TaxRate)))

	y += 10
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Text(140, y, "Total:")
	pdf.Text(165, y, money(o.TotalPrice))

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.Text(20, 270, "Thank you for your business!")
	pdf.Text(20, 280, "If you have any questions, please contact us.")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", o.ID, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) tableHeader(pdf *fpdf.Fpdf, y float64) float64 {
	pdf.SetFillColor(240, 240, 240)
	pdf.Rect(20, y, 170, 10, "F")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(25, y+7, "Item")
	pdf.Text(120, y+7, "Qty")
	pdf.Text(140, y+7, "Price")
	pdf.Text(165, y+7, "Total")
	return y + 20
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
