package pdf

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CoverLetter is the content of the letter that accompanies a filing packet.
type CoverLetter struct {
	ApplicantName   string
	Email           string
	MobileNumber    string
	ApplicationType string
	Recipient       []string // address block lines
	Subject         string
	Paragraphs      []string
	Enclosures      []string
	Date            time.Time
}

func (r *Renderer) RenderCoverLetter(cl CoverLetter) ([]byte, error) {
	if strings.TrimSpace(cl.ApplicantName) == "" {
		return nil, errors.New("cover letter requires an applicant name")
	}
	if cl.Date.IsZero() {
		cl.Date = time.Now()
	}

	doc, tr := r.newDoc("Cover Letter "+cl.ApplicantName, cl.Date)
	doc.SetFont("Helvetica", "", 11)

	for _, line := range []string{cl.ApplicantName, cl.Email, cl.MobileNumber} {
		if line != "" {
			doc.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
		}
	}
	doc.Ln(6)
	doc.CellFormat(0, 6, tr(cl.Date.Format("January 2, 2006")), "", 1, "L", false, 0, "")
	doc.Ln(6)

	for _, line := range cl.Recipient {
		doc.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
	}
	doc.Ln(6)

	subject := cl.Subject
	if subject == "" {
		subject = cl.ApplicationType + " application of " + cl.ApplicantName
	}
	doc.SetFont("Helvetica", "B", 11)
	doc.MultiCell(0, 6, tr("Re: "+subject), "", "L", false)
	doc.Ln(4)

	doc.SetFont("Helvetica", "", 11)
	doc.CellFormat(0, 6, tr("To Whom It May Concern:"), "", 1, "L", false, 0, "")
	doc.Ln(2)
	for _, p := range cl.Paragraphs {
		doc.MultiCell(0, 6, tr(p), "", "J", false)
		doc.Ln(3)
	}

	if len(cl.Enclosures) > 0 {
		doc.SetFont("Helvetica", "B", 11)
		doc.CellFormat(0, 6, tr("Enclosures:"), "", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 11)
		for i, e := range cl.Enclosures {
			doc.CellFormat(0, 6, tr(fmt.Sprintf("    %d. %s", i+1, e)), "", 1, "L", false, 0, "")
		}
		doc.Ln(3)
	}

	doc.CellFormat(0, 6, tr("Sincerely,"), "", 1, "L", false, 0, "")
	doc.Ln(10)
	doc.CellFormat(0, 6, tr(cl.ApplicantName), "", 1, "L", false, 0, "")

	return output(doc)
}
