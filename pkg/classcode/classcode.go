package classcode

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

// Alphabet is the set of symbols class codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the fixed class code length.
const Length = 6

// maxUnbiased is the largest multiple of len(Alphabet) that fits in a
// byte. Bytes at or above it are rejected; taking them mod 36 would
// favor the first 256%36 symbols of the alphabet.
const maxUnbiased = byte(256 / len(Alphabet) * len(Alphabet))

// Generate returns a random join code with each symbol drawn uniformly
// from Alphabet. Uniqueness is not guaranteed here; the subjects table
// enforces it with a unique key and creation retries on collision.
func Generate() (string, error) {
	return generate(rand.Reader)
}

func generate(r io.Reader) (string, error) {
	code := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(code) < Length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxUnbiased {
				continue
			}
			code = append(code, Alphabet[int(b)%len(Alphabet)])
			if len(code) == Length {
				break
			}
		}
	}
	return string(code), nil
}

// Normalize maps user-entered codes onto the canonical form used for
// lookups. Codes are case-insensitive at entry.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Valid reports whether a normalized code has the expected shape.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(Alphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
