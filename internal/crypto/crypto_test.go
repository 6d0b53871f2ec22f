package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"strings"
	"testing"
)

var (
	testKey   = bytes.Repeat([]byte{0xAA}, KeySize)
	testNonce = []byte("SYSTEMID\x10\x00\x00\x01")
)

func seal(t *testing.T, key, plaintext []byte) (ciphertext, tag []byte) {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		t.Fatalf("cipher.NewGCMWithTagSize: %v", err)
	}
	out := aead.Seal(nil, testNonce, plaintext, AuthenticatedData)
	return out[:len(out)-TagSize], out[len(out)-TagSize:]
}

func TestGCMDecrypt(t *testing.T) {
	plaintext := []byte("/EST5\\253710000_A\r\n\r\n1-3:0.2.8(50)\r\n!7EF9\r\n")
	ct, tag := seal(t, testKey, plaintext)

	dst := make([]byte, 0, 256)
	got, err := NewGCM(256).Decrypt(dst, testKey, testNonce, AuthenticatedData, ct, tag)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("plaintext mismatch: %q", got)
	}
	if &got[0] != &dst[:1][0] {
		t.Fatalf("plaintext not written into dst")
	}
}

func TestGCMDecryptRejectsTampering(t *testing.T) {
	plaintext := []byte("/KFM5KAIFA-METER\r\n\r\n!60e5\r\n")
	cases := []struct {
		name   string
		mutate func(ct, tag, aad []byte) ([]byte, []byte, []byte)
	}{
		{name: "ciphertext", mutate: func(ct, tag, aad []byte) ([]byte, []byte, []byte) {
			ct[3] ^= 0xFF
			return ct, tag, aad
		}},
		{name: "tag", mutate: func(ct, tag, aad []byte) ([]byte, []byte, []byte) {
			tag[0] ^= 0x01
			return ct, tag, aad
		}},
		{name: "aad", mutate: func(ct, tag, aad []byte) ([]byte, []byte, []byte) {
			aad[0] = 0x31
			return ct, tag, aad
		}},
		{name: "short tag", mutate: func(ct, tag, aad []byte) ([]byte, []byte, []byte) {
			return ct, tag[:8], aad
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ct, tag := seal(t, testKey, plaintext)
			aad := append([]byte(nil), AuthenticatedData...)
			ct, tag, aad = tc.mutate(ct, tag, aad)
			_, err := NewGCM(64).Decrypt(nil, testKey, testNonce, aad, ct, tag)
			if !errors.Is(err, ErrAuthentication) {
				t.Fatalf("expected ErrAuthentication, got %v", err)
			}
		})
	}
}

func TestGCMDecryptWrongKey(t *testing.T) {
	ct, tag := seal(t, testKey, []byte("/some telegram!"))
	_, err := NewGCM(64).Decrypt(nil, make([]byte, KeySize), testNonce, AuthenticatedData, ct, tag)
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestGCMDecryptInvalidKey(t *testing.T) {
	for _, size := range []int{0, 15, 24, 32} {
		_, err := NewGCM(64).Decrypt(nil, make([]byte, size), testNonce, AuthenticatedData, make([]byte, 4), make([]byte, TagSize))
		if !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key of %d bytes: expected ErrInvalidKey, got %v", size, err)
		}
		if want := fmt.Sprintf("want %d bytes, got %d", KeySize, size); !strings.Contains(err.Error(), want) {
			t.Fatalf("key of %d bytes: length not checked before cipher setup: %v", size, err)
		}
	}
}
