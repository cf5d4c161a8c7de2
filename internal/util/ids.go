// Package util provides identifier helpers shared across PsychIntake components.
package util

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// AnonymousIDPrefix marks patient ids generated locally for anonymous sessions.
const AnonymousIDPrefix = "anon_"

// NewAnonymousID returns a fresh temporary patient id such as "anon_<uuid>".
func NewAnonymousID() string {
	return AnonymousIDPrefix + uuid.NewString()
}

// IsAnonymousID reports whether id was generated by NewAnonymousID.
func IsAnonymousID(id string) bool {
	rest, ok := strings.CutPrefix(id, AnonymousIDPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// It is not suitable for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}
	return builder.String()
}

// GenerateRandomID generates a random ID in the format "{prefix}{hex}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}
