package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

const (
	// KeySize is the AES-128 key length in bytes.
	KeySize = 16
	// TagSize is the truncated GCM tag length DSMR meters send.
	TagSize = 12
)

var (
	ErrInvalidKey     = errors.New("encrypted telegram: AES key rejected")
	ErrAuthentication = errors.New("encrypted telegram: authentication failed")
)

// AuthenticatedData is the GCM additional data used by DSMR meters: the
// security control field 0x30 followed by the authentication key
// 00112233445566778899AABBCCDDEEFF, which is a published constant shared by
// all devices.
var AuthenticatedData = []byte{
	0x30,
	0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
	0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
}

// Decryptor opens one AES-128-GCM sealed telegram. Plaintext is appended to
// dst. Implementations report a rejected key with ErrInvalidKey and every
// other failure with ErrAuthentication.
type Decryptor interface {
	Decrypt(dst, key, nonce, aad, ciphertext, tag []byte) ([]byte, error)
}

// GCM is the Decryptor backed by crypto/aes.
type GCM struct {
	sealed []byte
}

var _ Decryptor = (*GCM)(nil)

// NewGCM returns a GCM decryptor able to open ciphertexts of up to
// maxSealed bytes (ciphertext plus tag) without allocating.
func NewGCM(maxSealed int) *GCM {
	return &GCM{sealed: make([]byte, 0, maxSealed)}
}

// Decrypt implements Decryptor.
func (g *GCM) Decrypt(dst, key, nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(nonce) != aead.NonceSize() || len(tag) != TagSize {
		return nil, fmt.Errorf("%w: nonce %d bytes, tag %d bytes", ErrAuthentication, len(nonce), len(tag))
	}
	g.sealed = append(g.sealed[:0], ciphertext...)
	g.sealed = append(g.sealed, tag...)
	plaintext, err := aead.Open(dst, nonce, g.sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return plaintext, nil
}
