package godsmr

import (
	"errors"

	"gitlab.com/d21d3q/godsmr/internal/options"
)

// Per-frame errors. Each one leaves the accumulator idle and waiting for the
// next start symbol; none of them is fatal to the accumulator.
var (
	ErrBufferOverflow            = errors.New("buffer overflow")
	ErrPacketStartSymbolInPacket = errors.New("packet start symbol in packet")
	ErrIncorrectCrcCharacter     = errors.New("incorrect CRC character")
	ErrCrcMismatch               = errors.New("CRC mismatch")
	ErrHeaderCorrupted           = errors.New("header corrupted")
	ErrFailedToSetEncryptionKey  = errors.New("failed to set encryption key")
	ErrDecryptionFailed          = errors.New("decryption failed")
)

// Key setup errors returned by EncryptedPacketAccumulator.SetKey.
var (
	ErrKeyLengthInvalid = options.ErrKeyLengthInvalid
	ErrKeyNotHex        = options.ErrKeyNotHex
)

// ErrInvalidBufferSize is returned by the constructors for capacities below 1.
var ErrInvalidBufferSize = errors.New("buffer size must be positive")

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrBufferOverflow, "BufferOverflow"},
	{ErrPacketStartSymbolInPacket, "PacketStartSymbolInPacket"},
	{ErrIncorrectCrcCharacter, "IncorrectCrcCharacter"},
	{ErrCrcMismatch, "CrcMismatch"},
	{ErrHeaderCorrupted, "HeaderCorrupted"},
	{ErrFailedToSetEncryptionKey, "FailedToSetEncryptionKey"},
	{ErrDecryptionFailed, "DecryptionFailed"},
	{ErrKeyLengthInvalid, "KeyLengthInvalid"},
	{ErrKeyNotHex, "KeyNotHex"},
}

// ErrorKind returns a stable name for err, suitable for log fields and
// metric labels. Unknown errors map to "Unknown".
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Unknown"
}
