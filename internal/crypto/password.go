package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{};:,.<>?/"
)

// Charset selects the character classes GeneratePassword draws from.
type Charset struct {
	Upper   bool
	Lower   bool
	Digits  bool
	Symbols bool
}

// DefaultCharset enables every class.
var DefaultCharset = Charset{Upper: true, Lower: true, Digits: true, Symbols: true}

func (c Charset) alphabet() string {
	var s string
	if c.Upper {
		s += upperChars
	}
	if c.Lower {
		s += lowerChars
	}
	if c.Digits {
		s += digitChars
	}
	if c.Symbols {
		s += symbolChars
	}
	return s
}

// GeneratePassword picks length characters uniformly from the enabled
// classes. An empty charset or a non-positive length yields "".
func GeneratePassword(length int, charset Charset) (string, error) {
	alphabet := charset.alphabet()
	if length <= 0 || alphabet == "" {
		return "", nil
	}

	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
