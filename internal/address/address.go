package address

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// PublicKeyLength is the decoded size of a wallet address
const PublicKeyLength = 32

// Base58-encoded 32-byte keys are 32 to 44 characters long
const (
	minEncodedLength = 32
	maxEncodedLength = 44
)

var (
	ErrEmpty          = errors.New("address is empty")
	ErrInvalidLength  = errors.New("address has invalid length")
	ErrInvalidCharset = errors.New("address contains non-base58 characters")
	ErrInvalidKeySize = errors.New("address does not decode to a 32-byte public key")
)

// Validate checks that s is a base58 string decoding to a 32-byte key
func Validate(s string) error {
	if s == "" {
		return ErrEmpty
	}
	if len(s) < minEncodedLength || len(s) > maxEncodedLength {
		return ErrInvalidLength
	}
	if strings.TrimSpace(s) != s {
		return ErrInvalidCharset
	}
	decoded := base58.Decode(s)
	if len(decoded) == 0 {
		// base58.Decode returns an empty slice on any invalid character
		return ErrInvalidCharset
	}
	if len(decoded) != PublicKeyLength {
		return ErrInvalidKeySize
	}
	return nil
}

// Encode returns the base58 form of a 32-byte key
func Encode(key [PublicKeyLength]byte) string {
	return base58.Encode(key[:])
}
