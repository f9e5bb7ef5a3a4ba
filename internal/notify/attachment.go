package notify

import "bytes"

var (
	zipMagic = []byte("PK\x03\x04")
	pdfMagic = []byte("%PDF")
)

// Attachment is a single file sent with the notification.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// NewAttachment names the file after the claim and picks the content type from
// the leading bytes, since the intake flow may hand over either a bundle or a raw PDF.
func NewAttachment(claimNumber string, data []byte) Attachment {
	if claimNumber == "" {
		claimNumber = "без_номера"
	}
	a := Attachment{FileName: "Заявление_" + claimNumber, ContentType: "application/octet-stream", Data: data}
	switch {
	case bytes.HasPrefix(data, zipMagic):
		a.FileName += ".zip"
		a.ContentType = "application/zip"
	case bytes.HasPrefix(data, pdfMagic):
		a.FileName += ".pdf"
		a.ContentType = "application/pdf"
	}
	return a
}
