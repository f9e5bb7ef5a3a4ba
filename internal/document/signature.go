package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/Armour007/parcelclaims-backend/internal/claims"
	"github.com/Armour007/parcelclaims-backend/internal/normalize"
)

// Signature block geometry in logical pixels; the raster is drawn at sigScale.
const (
	sigWidth  = 700
	sigHeight = 160
	sigScale  = 3

	frameW, frameH = 300, 140
	frameRadius    = 12
	frameStroke    = 1.5
	emblemSize     = 50
	qrSize         = 80
)

var (
	primaryColor = color.NRGBA{0x00, 0x46, 0xdc, 0xff}
	emblemFill   = color.NRGBA{0xe3, 0xf2, 0xfd, 0xff}
	qrFill       = color.NRGBA{0xf0, 0xf0, 0xf0, 0xff}
	qrText       = color.NRGBA{0x99, 0x99, 0x99, 0xff}
)

// SignatureLines are the caption lines printed inside the frame.
var SignatureLines = [3]string{"ДОКУМЕНТ ПОДПИСАН", "ПРОСТОЙ", "ЭЛЕКТРОННОЙ ПОДПИСЬЮ"}

// signatureRenderer draws the visual "signed" stamp. It is cosmetic: nothing in
// the image is a cryptographic signature.
type signatureRenderer struct {
	fonts  *FontSet
	emblem image.Image // nil draws the placeholder box
}

// CertificateID derives the 20 hex chars shown on the stamp from the claim identity.
func CertificateID(claimNumber, trackNumber string) string {
	sum := sha256.Sum256([]byte(claimNumber + trackNumber))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:20])
}

// render returns the stamp as PNG. Missing emblem or QR failures degrade to placeholders.
func (r *signatureRenderer) render(c claims.Claim, now time.Time) ([]byte, error) {
	canvas := imaging.New(sigWidth*sigScale, sigHeight*sigScale, color.White)

	column := float64(sigWidth) / 2
	fx := (column - frameW) / 2
	fy := float64(sigHeight-frameH) / 2
	r.frame(canvas, fx, fy)

	ex, ey := fx+15, fy+20
	if r.emblem != nil {
		img := imaging.Fit(r.emblem, emblemSize*sigScale, emblemSize*sigScale, imaging.Lanczos)
		canvas = imaging.Overlay(canvas, img, px(ex, ey), 1.0)
	} else {
		fillRect(canvas, ex, ey, emblemSize, emblemSize, emblemFill)
		r.textCentered(canvas, "РФ", true, 18, ex+emblemSize/2, ey+emblemSize/2, primaryColor)
	}

	tx, ty := fx+80, fy+25
	const lineHeight = 16
	for i, line := range SignatureLines {
		r.text(canvas, line, true, 13, tx, ty+float64(i*lineHeight), primaryColor)
	}

	owner := c.LastName
	if owner == "" {
		owner = "ФИО"
	}
	iy := ty + lineHeight*3 + 10
	r.text(canvas, "Сертификат: "+CertificateID(c.ClaimNumber, c.TrackNumber), false, 9, fx+15, iy, primaryColor)
	r.text(canvas, "Владелец: "+owner, false, 9, fx+15, iy+12, primaryColor)
	r.text(canvas, "Действителен: с "+now.In(normalize.DisplayZone).Format("02.01.2006"), false, 9, fx+15, iy+24, primaryColor)

	qx := column + (column-qrSize)/2
	qy := float64(sigHeight-qrSize) / 2
	payload := c.ClaimNumber
	if payload == "" {
		payload = c.TrackNumber
	}
	if qr, err := qrImage(payload); err == nil {
		canvas = imaging.Paste(canvas, qr, px(qx, qy))
	} else {
		fillRect(canvas, qx, qy, qrSize, qrSize, qrFill)
		r.textCentered(canvas, "QR", true, 20, qx+qrSize/2, qy+qrSize/2, qrText)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func qrImage(payload string) (image.Image, error) {
	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	q.ForegroundColor = primaryColor
	q.BackgroundColor = color.White
	side := qrSize * sigScale
	return imaging.Resize(q.Image(side), side, side, imaging.NearestNeighbor), nil
}

// frame strokes the rounded rectangle as the area between an outer and an
// inner outline wound in opposite directions.
func (r *signatureRenderer) frame(dst *image.NRGBA, x, y float64) {
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	h := frameStroke / 2
	roundRect(z, x-h, y-h, frameW+frameStroke, frameH+frameStroke, frameRadius+h, false)
	roundRect(z, x+h, y+h, frameW-frameStroke, frameH-frameStroke, frameRadius-h, true)
	z.Draw(dst, b, image.NewUniform(primaryColor), image.Point{})
}

func roundRect(z *vector.Rasterizer, x, y, w, h, rad float64, reverse bool) {
	s := func(v float64) float32 { return float32(v * sigScale) }
	x0, y0, x1, y1 := x, y, x+w, y+h
	z.MoveTo(s(x0+rad), s(y0))
	if !reverse {
		z.LineTo(s(x1-rad), s(y0))
		z.QuadTo(s(x1), s(y0), s(x1), s(y0+rad))
		z.LineTo(s(x1), s(y1-rad))
		z.QuadTo(s(x1), s(y1), s(x1-rad), s(y1))
		z.LineTo(s(x0+rad), s(y1))
		z.QuadTo(s(x0), s(y1), s(x0), s(y1-rad))
		z.LineTo(s(x0), s(y0+rad))
		z.QuadTo(s(x0), s(y0), s(x0+rad), s(y0))
	} else {
		z.QuadTo(s(x0), s(y0), s(x0), s(y0+rad))
		z.LineTo(s(x0), s(y1-rad))
		z.QuadTo(s(x0), s(y1), s(x0+rad), s(y1))
		z.LineTo(s(x1-rad), s(y1))
		z.QuadTo(s(x1), s(y1), s(x1), s(y1-rad))
		z.LineTo(s(x1), s(y0+rad))
		z.QuadTo(s(x1), s(y0), s(x1-rad), s(y0))
	}
	z.ClosePath()
}

func fillRect(dst *image.NRGBA, x, y, w, h float64, c color.Color) {
	rect := image.Rect(int(x*sigScale), int(y*sigScale), int((x+w)*sigScale), int((y+h)*sigScale))
	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

// text draws s with its top edge at (x, y) in logical pixels.
func (r *signatureRenderer) text(dst *image.NRGBA, s string, bold bool, size, x, y float64, c color.Color) {
	face, err := r.fonts.face(bold, size*sigScale)
	if err != nil {
		return
	}
	defer face.Close()
	d := font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	d.Dot = fixed.Point26_6{X: fixed.I(int(x * sigScale)), Y: fixed.I(int(y*sigScale)) + face.Metrics().Ascent}
	d.DrawString(s)
}

// textCentered draws s centred on (cx, cy) in logical pixels.
func (r *signatureRenderer) textCentered(dst *image.NRGBA, s string, bold bool, size, cx, cy float64, c color.Color) {
	face, err := r.fonts.face(bold, size*sigScale)
	if err != nil {
		return
	}
	defer face.Close()
	d := font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	m := face.Metrics()
	width := d.MeasureString(s)
	d.Dot = fixed.Point26_6{
		X: fixed.I(int(cx*sigScale)) - width/2,
		Y: fixed.I(int(cy*sigScale)) + (m.Ascent-m.Descent)/2,
	}
	d.DrawString(s)
}

func px(x, y float64) image.Point {
	return image.Pt(int(x*sigScale), int(y*sigScale))
}
