package godsmr

import (
	"fmt"

	"gitlab.com/d21d3q/godsmr/internal/crc16"
)

const (
	startSymbol = '/'
	endSymbol   = '!'
	crcNibbles  = 4
)

type packetState uint8

const (
	waitingForStart packetState = iota
	waitingForEnd
	waitingForCrc
)

// crcAccumulator folds the hex digits of the CRC trailer.
type crcAccumulator struct {
	crc     uint16
	nibbles int
}

func (c *crcAccumulator) reset() { *c = crcAccumulator{} }

func (c *crcAccumulator) add(b byte) bool {
	v, ok := hexNibble(b)
	if !ok {
		return false
	}
	c.crc = c.crc<<4 | uint16(v)
	c.nibbles++
	return true
}

func (c *crcAccumulator) full() bool { return c.nibbles == crcNibbles }

func hexNibble(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	default:
		return 0, false
	}
}

// PacketAccumulator reassembles plaintext "/...!CCCC" telegrams from a byte
// stream. Completed telegrams run from '/' through '!' inclusive; the CRC
// trailer is never part of them.
//
// A PacketAccumulator is not safe for concurrent use.
type PacketAccumulator struct {
	state    packetState
	buf      frameBuffer
	crc      crcAccumulator
	checkCRC bool
}

// NewPacketAccumulator allocates an accumulator whose telegrams may be up to
// bufferSize bytes long. With checkCRC set, each telegram must be followed by
// four hex digits matching its CRC16.
func NewPacketAccumulator(bufferSize int, checkCRC bool) (*PacketAccumulator, error) {
	if bufferSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, bufferSize)
	}
	return NewPacketAccumulatorWithBuffer(make([]byte, bufferSize), checkCRC)
}

// NewPacketAccumulatorWithBuffer is NewPacketAccumulator over caller-owned
// memory: telegrams are assembled in buf and may be up to len(buf) bytes.
// The accumulator owns buf until it is discarded.
func NewPacketAccumulatorWithBuffer(buf []byte, checkCRC bool) (*PacketAccumulator, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, len(buf))
	}
	return &PacketAccumulator{
		buf:      frameBuffer{data: buf},
		checkCRC: checkCRC,
	}, nil
}

// ProcessByte feeds the next byte of the stream.
func (a *PacketAccumulator) ProcessByte(b byte) Result {
	if !a.buf.hasSpace() {
		a.buf.reset()
		a.state = waitingForStart
		if b != startSymbol {
			return errorResult(ErrBufferOverflow)
		}
	}

	if b == startSymbol {
		a.buf.reset()
		a.buf.add(b)
		prev := a.state
		a.state = waitingForEnd
		if prev == waitingForEnd || prev == waitingForCrc {
			return errorResult(ErrPacketStartSymbolInPacket)
		}
		return Result{}
	}

	switch a.state {
	case waitingForEnd:
		a.buf.add(b)
		if b != endSymbol {
			return Result{}
		}
		if !a.checkCRC {
			a.state = waitingForStart
			return telegramResult(a.buf.bytes())
		}
		a.crc.reset()
		a.state = waitingForCrc
		return Result{}

	case waitingForCrc:
		if !a.crc.add(b) {
			a.state = waitingForStart
			return errorResult(ErrIncorrectCrcCharacter)
		}
		if !a.crc.full() {
			return Result{}
		}
		a.state = waitingForStart
		if a.crc.crc != crc16.Checksum(a.buf.bytes()) {
			return errorResult(ErrCrcMismatch)
		}
		return telegramResult(a.buf.bytes())
	}
	return Result{}
}

// Reset drops any partial telegram. Use it when the stream goes quiet in the
// middle of a telegram.
func (a *PacketAccumulator) Reset() {
	a.buf.reset()
	a.crc.reset()
	a.state = waitingForStart
}
