package ledger

import (
	"errors"
	"fmt"

	"github.com/Armour007/parcelclaims-backend/internal/claims"
)

// ErrNotFound is returned by Find when no claim exists for the key.
var ErrNotFound = errors.New("claim not found")

// ErrEmptyKey is returned by Create when the phone or track number is blank.
var ErrEmptyKey = errors.New("claim key is empty")

// StorageError wraps any failure of the underlying store. Op names the step that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("ledger %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// DuplicateError is returned by Create when a claim already exists for the
// (phone, track number) pair. Existing is the stored claim.
type DuplicateError struct {
	Existing *claims.Claim
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("claim %s already exists for this parcel", e.Existing.ClaimNumber)
}

// IsDuplicate reports whether err is a DuplicateError and returns the stored claim.
func IsDuplicate(err error) (*claims.Claim, bool) {
	var de *DuplicateError
	if errors.As(err, &de) {
		return de.Existing, true
	}
	return nil, false
}
