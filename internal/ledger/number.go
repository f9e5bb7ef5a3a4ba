package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NumberPrefix is the literal tag every claim number starts with.
const NumberPrefix = "CL-"

// NewClaimNumber returns CL-<unix ms>-<6 uppercase hex chars>.
// The suffix carries 24 random bits so numbers issued in the same millisecond still differ.
func NewClaimNumber(now time.Time) (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("claim number entropy: %w", err)
	}
	return fmt.Sprintf("%s%d-%s", NumberPrefix, now.UnixMilli(), strings.ToUpper(hex.EncodeToString(b[:]))), nil
}
