package options

import (
	"encoding/hex"
	"errors"
	"fmt"

	"gitlab.com/d21d3q/godsmr/internal/crypto"
)

var (
	ErrKeyLengthInvalid = errors.New("encryption key must be 32 hex digits")
	ErrKeyNotHex        = errors.New("encryption key contains non-hex symbols")
)

// ParseKeyHex validates and decodes a 32-hex-digit AES key string such as
// "00112233445566778899AABBCCDDEEFF". Both cases are accepted.
func ParseKeyHex(input string) ([crypto.KeySize]byte, error) {
	var key [crypto.KeySize]byte
	if len(input) != hex.EncodedLen(crypto.KeySize) {
		return key, fmt.Errorf("%w: got %d", ErrKeyLengthInvalid, len(input))
	}
	if _, err := hex.Decode(key[:], []byte(input)); err != nil {
		var invalid hex.InvalidByteError
		if errors.As(err, &invalid) {
			return [crypto.KeySize]byte{}, fmt.Errorf("%w: %q", ErrKeyNotHex, byte(invalid))
		}
		return [crypto.KeySize]byte{}, fmt.Errorf("%w: %v", ErrKeyNotHex, err)
	}
	return key, nil
}
