package godsmr

import (
	"errors"
	"fmt"

	"gitlab.com/d21d3q/godsmr/internal/crypto"
	"gitlab.com/d21d3q/godsmr/internal/frame"
	"gitlab.com/d21d3q/godsmr/internal/options"
)

type encryptedState uint8

const (
	encWaitingForStart encryptedState = iota
	encAccumulatingHeader
	encAccumulatingTelegram
)

// EncryptedOption customises an EncryptedPacketAccumulator.
type EncryptedOption func(*EncryptedPacketAccumulator)

// WithDecryptor replaces the default AES-128-GCM decryptor.
func WithDecryptor(d crypto.Decryptor) EncryptedOption {
	return func(a *EncryptedPacketAccumulator) {
		a.decryptor = d
	}
}

// EncryptedPacketAccumulator reassembles AES-128-GCM encrypted telegrams
// (Luxembourg Smarty style, general-global-cipher framing):
//
//	header (18 bytes) | ciphertext | GCM tag (12 bytes)
//
// and emits the decrypted telegram, in the same shape PacketAccumulator
// produces for plaintext meters.
//
// An EncryptedPacketAccumulator is not safe for concurrent use.
type EncryptedPacketAccumulator struct {
	state     encryptedState
	header    frame.HeaderAccumulator
	current   frame.Header
	sealed    frameBuffer
	plaintext []byte
	key       [crypto.KeySize]byte
	decryptor crypto.Decryptor
}

// NewEncryptedPacketAccumulator allocates an accumulator for frames whose
// ciphertext plus tag fit in bufferSize bytes. Two buffers of that size are
// allocated up front, one for the ciphertext and one for the plaintext. The
// key defaults to all zeros until SetKey is called.
func NewEncryptedPacketAccumulator(bufferSize int, opts ...EncryptedOption) (*EncryptedPacketAccumulator, error) {
	if bufferSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, bufferSize)
	}
	a := &EncryptedPacketAccumulator{
		sealed:    newFrameBuffer(bufferSize),
		plaintext: make([]byte, 0, bufferSize),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.decryptor == nil {
		a.decryptor = crypto.NewGCM(bufferSize)
	}
	return a, nil
}

// SetKey installs the meter's key, given as 32 hex digits. On error the
// previous key stays in place.
func (a *EncryptedPacketAccumulator) SetKey(keyHex string) error {
	key, err := options.ParseKeyHex(keyHex)
	if err != nil {
		return err
	}
	a.key = key
	return nil
}

// Header returns the header of the most recent frame that passed the
// consistency and capacity checks.
func (a *EncryptedPacketAccumulator) Header() frame.Header {
	return a.current
}

// ProcessByte feeds the next byte of the stream.
func (a *EncryptedPacketAccumulator) ProcessByte(b byte) Result {
	switch a.state {
	case encWaitingForStart:
		if b == frame.Tag {
			a.header.Reset()
			a.header.Add(b)
			a.sealed.reset()
			a.state = encAccumulatingHeader
		}
		return Result{}

	case encAccumulatingHeader:
		a.header.Add(b)
		if !a.header.Complete() {
			return Result{}
		}
		h := a.header.Header()
		if !h.CheckConsistency() {
			a.state = encWaitingForStart
			return errorResult(ErrHeaderCorrupted)
		}
		if h.TelegramWithTagLength() > a.sealed.capacity() {
			a.state = encWaitingForStart
			return errorResult(fmt.Errorf("%w: frame needs %d bytes, capacity %d",
				ErrBufferOverflow, h.TelegramWithTagLength(), a.sealed.capacity()))
		}
		a.current = h
		a.state = encAccumulatingTelegram
		return Result{}

	case encAccumulatingTelegram:
		a.sealed.add(b)
		if a.sealed.len() != a.current.TelegramWithTagLength() {
			return Result{}
		}
		a.state = encWaitingForStart
		return a.decrypt()
	}
	return Result{}
}

func (a *EncryptedPacketAccumulator) decrypt() Result {
	sealed := a.sealed.bytes()
	split := len(sealed) - crypto.TagSize
	nonce := a.current.Nonce()
	plaintext, err := a.decryptor.Decrypt(a.plaintext[:0], a.key[:], nonce[:],
		crypto.AuthenticatedData, sealed[:split], sealed[split:])
	switch {
	case errors.Is(err, crypto.ErrInvalidKey):
		return errorResult(fmt.Errorf("%w: %w", ErrFailedToSetEncryptionKey, err))
	case err != nil:
		return errorResult(fmt.Errorf("%w: %w", ErrDecryptionFailed, err))
	}
	return telegramResult(plaintext[:len(plaintext):len(plaintext)])
}

// Reset drops any partial frame. The key and decryptor are kept.
func (a *EncryptedPacketAccumulator) Reset() {
	a.header.Reset()
	a.sealed.reset()
	a.state = encWaitingForStart
}
