// Package token produces the short-lived credentials shown in attendance codes.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"qr-attendance-svc/src/internal/models"
)

// Size is the number of random bytes in a token (128 bits).
const Size = 16

// Generator produces unguessable session tokens.
type Generator interface {
	Generate() (string, error)
}

type generator struct {
	entropy io.Reader
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() Generator {
	return &generator{entropy: rand.Reader}
}

// NewGeneratorWithSource uses the given entropy source. A source that cannot
// fill the buffer makes Generate fail; it is never replaced by a weaker one.
func NewGeneratorWithSource(entropy io.Reader) Generator {
	return &generator{entropy: entropy}
}

// Generate returns a 32-character lowercase hex token.
func (g *generator) Generate() (string, error) {
	buf := make([]byte, Size)
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrEntropyUnavailable, err)
	}
	return hex.EncodeToString(buf), nil
}
