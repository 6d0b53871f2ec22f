package godsmr

// frameBuffer is a fixed-capacity byte buffer. It is allocated once and
// reused by resetting its logical length; n never exceeds len(data).
type frameBuffer struct {
	data []byte
	n    int
}

func newFrameBuffer(size int) frameBuffer {
	return frameBuffer{data: make([]byte, size)}
}

func (b *frameBuffer) add(c byte) {
	b.data[b.n] = c
	b.n++
}

func (b *frameBuffer) hasSpace() bool { return b.n < len(b.data) }

func (b *frameBuffer) reset() { b.n = 0 }

func (b *frameBuffer) len() int { return b.n }

func (b *frameBuffer) capacity() int { return len(b.data) }

func (b *frameBuffer) bytes() []byte { return b.data[:b.n:b.n] }
