package ride

import "crypto/rand"

// CodeLength is the length of the short human-facing ride code.
const CodeLength = 6

const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz" // base36

// NewCode generates a random 6-char base36 code. Uniqueness is
// enforced by the store's unique index; callers retry on collision.
func NewCode() string {
	buf := make([]byte, CodeLength)
	_, _ = rand.Read(buf)

	out := make([]byte, CodeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out)
}

// ValidCode reports whether s looks like a ride code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
