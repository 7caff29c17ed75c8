package sandbox

import "bytes"

// boundedBuffer is an io.Writer that stops accepting data once limit
// bytes have been written, so a runaway sandboxed process can't exhaust
// host memory through its captured stdout/stderr. The cap tracks the
// box's own fsize limit.
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
