package frame

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the length of the general-global-cipher header that
	// precedes every encrypted telegram.
	HeaderSize = 18

	Tag                   = 0xDB
	SystemTitleLength     = 0x08
	LongFormLength        = 0x82
	SecurityControlField  = 0x30
	NonceSize             = 12
	minTelegramWithTagLen = 25

	// security control field + invocation counter, both counted in TotalLength
	lengthOverhead = 5
)

// Header is the decoded fixed part of an encrypted frame:
//
//	0xDB | 0x08 | system title (8) | 0x82 | total length (2, BE) | 0x30 | invocation counter (4, BE)
type Header struct {
	Tag               byte
	SystemTitleLength byte
	SystemTitle       [8]byte
	LengthIndicator   byte
	TotalLength       uint16
	SecurityControl   byte
	InvocationCounter uint32
}

// ParseHeader decodes the first HeaderSize bytes of raw. It does not judge
// the field values; see CheckConsistency.
func ParseHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, fmt.Errorf("header too short: %d bytes", len(raw))
	}
	h := Header{
		Tag:               raw[0],
		SystemTitleLength: raw[1],
		LengthIndicator:   raw[10],
		TotalLength:       binary.BigEndian.Uint16(raw[11:13]),
		SecurityControl:   raw[13],
		InvocationCounter: binary.BigEndian.Uint32(raw[14:18]),
	}
	copy(h.SystemTitle[:], raw[2:10])
	return h, nil
}

// TelegramWithTagLength is the number of bytes that follow the header:
// ciphertext plus the 12 byte GCM tag. It can be negative for garbage input.
func (h Header) TelegramWithTagLength() int {
	return int(h.TotalLength) - lengthOverhead
}

// Nonce returns the GCM initialisation vector, system title followed by the
// invocation counter.
func (h Header) Nonce() [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[:8], h.SystemTitle[:])
	binary.BigEndian.PutUint32(nonce[8:], h.InvocationCounter)
	return nonce
}

// CheckConsistency reports whether the constant fields hold their fixed
// values and the declared length is realistic. Nothing else in the header
// can be verified before decryption.
func (h Header) CheckConsistency() bool {
	return h.Tag == Tag &&
		h.SystemTitleLength == SystemTitleLength &&
		h.LengthIndicator == LongFormLength &&
		h.SecurityControl == SecurityControlField &&
		h.TelegramWithTagLength() > minTelegramWithTagLen
}

// SystemTitleString renders the system title, which is printable ASCII for
// most meters.
func (h Header) SystemTitleString() string {
	for _, b := range h.SystemTitle {
		if b < 0x20 || b > 0x7E {
			return fmt.Sprintf("%X", h.SystemTitle[:])
		}
	}
	return string(h.SystemTitle[:])
}

// HeaderAccumulator collects header bytes one at a time.
type HeaderAccumulator struct {
	raw [HeaderSize]byte
	n   int
}

// Reset discards any collected bytes.
func (a *HeaderAccumulator) Reset() {
	a.n = 0
}

// Add stores the next header byte. Bytes beyond HeaderSize are dropped.
func (a *HeaderAccumulator) Add(b byte) {
	if a.n == HeaderSize {
		return
	}
	a.raw[a.n] = b
	a.n++
}

// Complete reports whether all HeaderSize bytes arrived.
func (a *HeaderAccumulator) Complete() bool {
	return a.n == HeaderSize
}

// Header decodes the collected bytes. Only meaningful once Complete.
func (a *HeaderAccumulator) Header() Header {
	h, _ := ParseHeader(a.raw[:])
	return h
}
