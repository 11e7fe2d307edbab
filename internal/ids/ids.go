// Package ids generates correlation identifiers.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MaxCorrelationLength bounds inbound correlation ids that are reused verbatim.
const MaxCorrelationLength = 128

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a lexicographically sortable ULID string.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Correlation returns inbound when it is a usable correlation id and a fresh
// ULID otherwise. Usable ids are 1..MaxCorrelationLength printable ASCII bytes.
func Correlation(inbound string) string {
	if ValidCorrelation(inbound) {
		return inbound
	}
	return New()
}

// ValidCorrelation reports whether s may be echoed back to clients and logs.
func ValidCorrelation(s string) bool {
	if len(s) == 0 || len(s) > MaxCorrelationLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
