package godsmr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultReadBufferSize = 256

// Accumulator is the byte-at-a-time interface shared by PacketAccumulator
// and EncryptedPacketAccumulator.
type Accumulator interface {
	ProcessByte(b byte) Result
	Reset()
}

var (
	_ Accumulator = (*PacketAccumulator)(nil)
	_ Accumulator = (*EncryptedPacketAccumulator)(nil)
)

// Observer receives counters from a Reader. internal/metrics provides the
// Prometheus implementation.
type Observer interface {
	ObserveBytes(n int)
	ObserveTelegram(size int)
	ObserveError(kind string)
	ObserveReset()
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// IdleTimeout resets the accumulator when the stream has been silent
	// for longer than this. Zero disables the check.
	IdleTimeout time.Duration
	// ReadBufferSize is the chunk size handed to the source's Read.
	ReadBufferSize int
	Logger         logrus.FieldLogger
	Observer       Observer
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Handler receives each telegram. The slice is owned by the handler.
// Returning an error stops Reader.Run.
type Handler func(telegram []byte) error

// Reader feeds a byte stream, typically a serial port, into an Accumulator.
type Reader struct {
	src  io.Reader
	acc  Accumulator
	opts ReaderOptions
	buf  []byte

	last     time.Time
	idleDone bool
}

// NewReader wires src to acc.
func NewReader(src io.Reader, acc Accumulator, opts ReaderOptions) *Reader {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = defaultReadBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Reader{
		src:  src,
		acc:  acc,
		opts: opts,
		buf:  make([]byte, opts.ReadBufferSize),
	}
}

// Run reads until the source is exhausted (returning nil), the source fails,
// the handler fails or ctx is done. Accumulator errors are logged and
// counted; they never stop Run.
//
// Run only observes ctx between reads. To interrupt a blocked read, close the
// source after cancelling ctx; the resulting read error is reported as
// ctx.Err().
func (r *Reader) Run(ctx context.Context, handle Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.src.Read(r.buf)
		r.checkIdle(n > 0)
		if n > 0 {
			r.opts.Observer.ObserveBytes(n)
			if herr := r.process(r.buf[:n], handle); herr != nil {
				return herr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return fmt.Errorf("read telegram stream: %w", err)
		}
	}
}

// checkIdle resets the accumulator once per silent period longer than the
// idle timeout.
func (r *Reader) checkIdle(gotData bool) {
	now := r.opts.Clock()
	if r.opts.IdleTimeout > 0 && !r.last.IsZero() && !r.idleDone && now.Sub(r.last) > r.opts.IdleTimeout {
		r.acc.Reset()
		r.idleDone = true
		r.opts.Observer.ObserveReset()
		r.opts.Logger.WithField("idle", now.Sub(r.last)).Debug("stream idle, accumulator reset")
	}
	if gotData {
		r.last = now
		r.idleDone = false
	}
}

func (r *Reader) process(chunk []byte, handle Handler) error {
	for _, b := range chunk {
		res := r.acc.ProcessByte(b)
		if err := res.Err(); err != nil {
			kind := ErrorKind(err)
			r.opts.Observer.ObserveError(kind)
			r.opts.Logger.WithError(err).WithField("kind", kind).Warn("dropped telegram")
			continue
		}
		tg, ok := res.Telegram()
		if !ok {
			continue
		}
		r.opts.Observer.ObserveTelegram(len(tg))
		r.opts.Logger.WithField("bytes", len(tg)).Debug("telegram received")
		if err := handle(bytes.Clone(tg)); err != nil {
			return err
		}
	}
	return nil
}

type nopObserver struct{}

func (nopObserver) ObserveBytes(int) {}

func (nopObserver) ObserveTelegram(int) {}

func (nopObserver) ObserveError(string) {}

func (nopObserver) ObserveReset() {}
