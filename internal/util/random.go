// Package util provides utility functions for the MindMate application.
package util

import (
	"crypto/rand"
	mathrand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Not suitable for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[mathrand.IntN(16)])
	}

	return builder.String()
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewRecordID returns a lexicographically time-ordered identifier for a record
// created at t. IDs generated within the same millisecond stay ordered.
func NewRecordID(prefix string, t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return prefix + ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

// Record ID prefixes
const (
	PrefixInteraction = "rec_"
	PrefixAssessment  = "ra_"
	PrefixJob         = "job_"
)
