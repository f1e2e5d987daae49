// Package pdf renders the receipts and cover letters issued for an application.
package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin = 20.0
	lineHeight = 7.0
	brandName  = "GritSync"
)

var paymentLabels = map[string]string{
	"step1":         "Application Fee (Step 1)",
	"step2":         "Application Fee (Step 2)",
	"full":          "Full Application Fee",
	"quick_results": "Quick Results Fee",
}

// PaymentLabel is the human label printed for a payment type.
func PaymentLabel(paymentType string) string {
	if l, ok := paymentLabels[paymentType]; ok {
		return l
	}
	return paymentType
}

// Renderer builds PDF documents. The zero value writes compressed streams.
type Renderer struct {
	uncompressed bool
}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) newDoc(title string, created time.Time) (*fpdf.Fpdf, func(string) string) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	doc.SetCompression(!r.uncompressed)
	doc.SetTitle(title, true)
	doc.SetAuthor(brandName, true)
	if !created.IsZero() {
		doc.SetCreationDate(created)
		doc.SetModificationDate(created)
	}
	doc.AddPage()
	// core fonts are cp1252; translate UTF-8 input
	return doc, doc.UnicodeTranslatorFromDescriptor("")
}

func output(doc *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func money(amount float64, currency string) string {
	return fmt.Sprintf("%s %.2f", strings.ToUpper(currency), amount)
}

// ReceiptNumber derives the printed receipt number from the payment id and date.
func ReceiptNumber(paymentID string, paidAt time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(paymentID, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("GS-%s-%s", paidAt.UTC().Format("20060102"), short)
}
