// Package artifact builds the integrity record that travels with a claim document
// and the zip bundle used to deliver both together.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	Algorithm         = "SHA-256"
	DocumentFileName  = "claim.pdf"
	SignatureFileName = "signature.json"
)

// Signature is a tamper-evidence marker over the exact document bytes.
// It is a plain digest, not a digital signature.
type Signature struct {
	SignatureHex   string    `json:"signature"`
	Algorithm      string    `json:"algorithm"`
	Timestamp      time.Time `json:"timestamp"`
	SourceFileName string    `json:"fileName"`
}

// ComputeSignature hashes doc. The digest depends only on doc; now only stamps the record.
func ComputeSignature(doc []byte, now time.Time) Signature {
	sum := sha256.Sum256(doc)
	return Signature{
		SignatureHex:   hex.EncodeToString(sum[:]),
		Algorithm:      Algorithm,
		Timestamp:      now.UTC(),
		SourceFileName: DocumentFileName,
	}
}

// Verify reports whether doc still hashes to s.
func (s Signature) Verify(doc []byte) bool {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:]) == s.SignatureHex
}

// JSON is the canonical encoding written into the archive.
func (s Signature) JSON() ([]byte, error) {
	return canonicalJSON(s)
}
