// internal/guessgame/code.go
package guessgame

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeLength is the number of digits in a game code.
const CodeLength = 9

var codeDigitCount = big.NewInt(10)

// GenerateCode returns a cryptographically random numeric game code of CodeLength digits.
func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, codeDigitCount)
		if err != nil {
			return "", fmt.Errorf("generating game code: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
