package pdf

import (
	"errors"
	"time"
)

// Receipt is the content of a payment receipt.
type Receipt struct {
	PaymentID       string
	ApplicationID   string
	ApplicationType string
	ApplicantName   string
	Email           string
	PaymentType     string
	Amount          float64
	Currency        string
	IntentID        string
	PaidAt          time.Time
}

func (r *Renderer) RenderReceipt(rc Receipt) ([]byte, error) {
	if rc.PaymentID == "" {
		return nil, errors.New("receipt requires a payment id")
	}
	number := ReceiptNumber(rc.PaymentID, rc.PaidAt)

	doc, tr := r.newDoc("Payment Receipt "+number, rc.PaidAt)

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 10, tr(brandName+" Payment Receipt"), "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 6, tr("Receipt No. "+number), "", 1, "L", false, 0, "")
	doc.Ln(6)

	rows := [][2]string{
		{"Applicant", rc.ApplicantName},
		{"Email", rc.Email},
		{"Application", rc.ApplicationType + " / " + rc.ApplicationID},
		{"Payment", PaymentLabel(rc.PaymentType)},
		{"Reference", rc.IntentID},
		{"Date paid", rc.PaidAt.UTC().Format("January 2, 2006")},
	}
	for _, row := range rows {
		doc.SetFont("Helvetica", "B", 11)
		doc.CellFormat(45, lineHeight, tr(row[0]), "", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 11)
		doc.CellFormat(0, lineHeight, tr(row[1]), "", 1, "L", false, 0, "")
	}

	doc.Ln(4)
	doc.SetFillColor(240, 240, 240)
	doc.SetFont("Helvetica", "B", 12)
	doc.CellFormat(120, 9, tr(PaymentLabel(rc.PaymentType)), "1", 0, "L", true, 0, "")
	doc.CellFormat(0, 9, tr(money(rc.Amount, rc.Currency)), "1", 1, "R", true, 0, "")
	doc.CellFormat(120, 9, tr("Total paid"), "1", 0, "L", false, 0, "")
	doc.CellFormat(0, 9, tr(money(rc.Amount, rc.Currency)), "1", 1, "R", false, 0, "")

	doc.Ln(10)
	doc.SetFont("Helvetica", "I", 9)
	doc.MultiCell(0, 5, tr("This receipt confirms payment received by "+brandName+
		". Keep it for your records; it is not a government fee receipt."), "", "L", false)

	return output(doc)
}
