package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/sirupsen/logrus"

	"github.com/Armour007/parcelclaims-backend/internal/claims"
)

// GenerationError is a renderer-level failure; the document could not be produced at all.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "document generation: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// page layout in points
const (
	margin      = 40.0
	labelShare  = 0.30
	cellPad     = 4.0
	lineHeight  = 13.0
	fontFamily  = "body"
	imageWidth  = 500.0
	imageMargin = 100.0
)

// Composer turns claims into PDFs. It is safe for concurrent use.
type Composer struct {
	fonts    *FontSet
	sig      *signatureRenderer
	maskCard bool
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewComposer loads the emblem once. When it cannot be read the stamp shows a placeholder box.
func NewComposer(fonts *FontSet, emblemPath string, maskCard bool, log logrus.FieldLogger) *Composer {
	var emblem image.Image
	if emblemPath != "" {
		img, err := imaging.Open(emblemPath)
		if err != nil {
			log.WithError(err).WithField("path", emblemPath).Warn("emblem unavailable, using placeholder")
		} else {
			emblem = img
		}
	}
	return &Composer{
		fonts:    fonts,
		sig:      &signatureRenderer{fonts: fonts, emblem: emblem},
		maskCard: maskCard,
		log:      log,
		now:      time.Now,
	}
}

// Compose renders c. Only a failure of the PDF writer itself is returned, as *GenerationError;
// a stamp that cannot be drawn is left out and logged.
func (cp *Composer) Compose(ctx context.Context, c claims.Claim) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GenerationError{Err: err}
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.AddUTF8FontFromBytes(fontFamily, "", cp.fonts.Regular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", cp.fonts.Bold)
	pdf.SetTitle(Title+" "+c.ClaimNumber, true)
	pdf.SetCreator("parcelclaims-backend", true)
	if err := pdf.Error(); err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("fonts: %w", err)}
	}
	pdf.AddPage()

	pdf.SetTextColor(0x2c, 0x3e, 0x50)
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 20, Title, "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.SetTextColor(0x34, 0x49, 0x5e)
	pdf.SetFont(fontFamily, "B", 14)
	pdf.CellFormat(0, 18, Subtitle, "", 1, "C", false, 0, "")
	pdf.Ln(14)

	for _, s := range BuildSections(c, cp.maskCard) {
		cp.section(pdf, s, 12)
		if s.Sub != nil {
			cp.section(pdf, *s.Sub, 11)
		}
	}

	stamp, err := cp.sig.render(c, cp.now())
	if err != nil {
		cp.log.WithError(err).WithField("claim_number", c.ClaimNumber).Warn("signature stamp skipped")
	} else {
		cp.stamp(pdf, stamp)
	}

	if err := pdf.Error(); err != nil {
		return nil, &GenerationError{Err: err}
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &GenerationError{Err: err}
	}
	return buf.Bytes(), nil
}

func (cp *Composer) section(pdf *fpdf.Fpdf, s Section, titleSize float64) {
	pdf.SetTextColor(0x2c, 0x3e, 0x50)
	pdf.SetFont(fontFamily, "B", titleSize)
	cp.ensureSpace(pdf, 20+lineHeight+2*cellPad)
	pdf.Ln(6)
	pdf.CellFormat(0, 16, s.Title, "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 10)
	pageW, _ := pdf.GetPageSize()
	content := pageW - 2*margin
	labelW := content * labelShare
	valueW := content - labelW
	for _, row := range s.Rows {
		label := wrap(pdf, row.Label, labelW-2*cellPad)
		value := wrap(pdf, row.Value, valueW-2*cellPad)
		n := len(label)
		if len(value) > n {
			n = len(value)
		}
		h := float64(n)*lineHeight + 2*cellPad
		cp.ensureSpace(pdf, h)
		x, y := pdf.GetXY()
		pdf.SetDrawColor(0xbd, 0xc3, 0xc7)
		pdf.Rect(x, y, labelW, h, "D")
		pdf.Rect(x+labelW, y, valueW, h, "D")
		lines(pdf, label, x+cellPad, y+cellPad, labelW-2*cellPad)
		lines(pdf, value, x+labelW+cellPad, y+cellPad, valueW-2*cellPad)
		pdf.SetXY(x, y+h)
	}
	pdf.Ln(8)
}

func (cp *Composer) stamp(pdf *fpdf.Fpdf, png []byte) {
	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	info := pdf.RegisterImageOptionsReader("signature", opts, bytes.NewReader(png))
	if info == nil || pdf.Error() != nil {
		cp.log.WithError(pdf.Error()).Warn("signature stamp not embedded")
		pdf.ClearError()
		return
	}
	h := imageWidth * float64(sigHeight) / float64(sigWidth)
	_, y := pdf.GetXY()
	_, pageH := pdf.GetPageSize()
	y += imageMargin
	if y+h > pageH-margin {
		pdf.AddPage()
		_, y = pdf.GetXY()
	}
	pageW, _ := pdf.GetPageSize()
	pdf.ImageOptions("signature", (pageW-imageWidth)/2, y, imageWidth, h, false, opts, 0, "")
}

func (cp *Composer) ensureSpace(pdf *fpdf.Fpdf, h float64) {
	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+h > pageH-margin {
		pdf.AddPage()
	}
}

func lines(pdf *fpdf.Fpdf, ls []string, x, y, w float64) {
	for i, l := range ls {
		pdf.SetXY(x, y+float64(i)*lineHeight)
		pdf.CellFormat(w, lineHeight, l, "", 0, "L", false, 0, "")
	}
}

// wrap breaks text into lines no wider than w at the current font, splitting
// words that do not fit on their own.
func wrap(pdf *fpdf.Fpdf, text string, w float64) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			for pdf.GetStringWidth(word) > w {
				head, tail := splitAt(pdf, word, w)
				if line != "" {
					out = append(out, line)
					line = ""
				}
				out = append(out, head)
				word = tail
			}
			switch {
			case line == "":
				line = word
			case pdf.GetStringWidth(line+" "+word) <= w:
				line += " " + word
			default:
				out = append(out, line)
				line = word
			}
		}
		out = append(out, line)
	}
	return out
}

func splitAt(pdf *fpdf.Fpdf, word string, w float64) (string, string) {
	rs := []rune(word)
	i := 1
	for i < len(rs) && pdf.GetStringWidth(string(rs[:i+1])) <= w {
		i++
	}
	return string(rs[:i]), string(rs[i:])
}
