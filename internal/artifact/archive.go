package artifact

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"io"
	"time"
)

// CompressionLevel is the DEFLATE level used for bundles.
const CompressionLevel = 6

// ArchiveError means no bundle was produced; callers deliver the raw document instead.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string { return "archive: " + e.Err.Error() }
func (e *ArchiveError) Unwrap() error { return e.Err }

// BuildArchive packs the document and its signature JSON. It either returns a
// complete archive or an *ArchiveError, never a partial one.
func BuildArchive(doc, signature []byte, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, CompressionLevel)
	})
	for _, f := range []struct {
		name string
		body []byte
	}{
		{DocumentFileName, doc},
		{SignatureFileName, signature},
	} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			_ = zw.Close()
			return nil, &ArchiveError{Err: err}
		}
		if _, err := w.Write(f.body); err != nil {
			_ = zw.Close()
			return nil, &ArchiveError{Err: err}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, &ArchiveError{Err: err}
	}
	return buf.Bytes(), nil
}

// Bundle signs doc and archives both in one step.
func Bundle(doc []byte, now time.Time) ([]byte, Signature, error) {
	sig := ComputeSignature(doc, now)
	js, err := sig.JSON()
	if err != nil {
		return nil, sig, &ArchiveError{Err: err}
	}
	out, err := BuildArchive(doc, js, now)
	return out, sig, err
}
