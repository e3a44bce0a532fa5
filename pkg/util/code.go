package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateNumericCode generates a random numeric code of the given length
// from a cryptographically secure source. Leading zeros are preserved.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}

	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// GenerateOpaqueCode creates a cryptographically secure random hex token
// of the given byte length.
func GenerateOpaqueCode(numBytes int) (string, error) {
	if numBytes <= 0 {
		return "", fmt.Errorf("code byte length must be positive, got %d", numBytes)
	}

	bytes := make([]byte, numBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
