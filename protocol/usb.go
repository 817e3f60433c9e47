package protocol

import (
	"io"
	"time"
)

// DefaultReadGap is the quiet time after which buffered USB input is taken
// as one complete message.
const DefaultReadGap = 10 * time.Millisecond

var overflowLine = []byte("OVRFLW\n")

// USBTransport carries unaddressed traffic over a virtual serial port.
// Input has no framing of its own: everything received before a quiet gap
// forms one message. Replies get a trailing terminator.
type USBTransport struct {
	rx      *FifoBuffer
	lastRx  time.Time
	gap     time.Duration
	dropped bool

	out     io.Writer
	tx      TxBuffer
	scratch [BufferSize]byte
}

// NewUSBTransport creates a USB transport writing to out.
func NewUSBTransport(out io.Writer, gap time.Duration) *USBTransport {
	if gap <= 0 {
		gap = DefaultReadGap
	}
	return &USBTransport{
		rx:  NewFifoBuffer(BufferSize),
		gap: gap,
		out: out,
	}
}

// Receive stores input bytes. Bytes that do not fit are dropped and the
// message is marked as overflowed.
func (u *USBTransport) Receive(data []byte, now time.Time) {
	if len(data) == 0 {
		return
	}
	if n := u.rx.Write(data); n < len(data) {
		u.dropped = true
	}
	u.lastRx = now
}

// Poll returns the buffered message once no input has arrived for the gap.
// The returned slice is valid until the next Receive.
func (u *USBTransport) Poll(now time.Time) ([]byte, bool) {
	if u.rx.IsEmpty() || now.Sub(u.lastRx) < u.gap {
		return nil, false
	}
	n := u.rx.Available()
	msg := u.scratch[:n]
	u.rx.Read(msg)
	if u.dropped {
		u.dropped = false
		u.WriteReply(OverflowReply)
		return nil, false
	}
	return msg, true
}

// WriteReply queues p followed by the terminator. A reply that cannot fit
// the transmit buffer is dropped.
func (u *USBTransport) WriteReply(p []byte) int {
	if len(p)+1 > BufferSize-1 {
		return 0
	}
	var frame [BufferSize]byte
	n := copy(frame[:], p)
	frame[n] = Terminator
	if !u.tx.Queue(frame[:n+1], overflowLine) {
		return 0
	}
	return len(p)
}

// Pending returns the queued output
func (u *USBTransport) Pending() []byte {
	return u.tx.Pending()
}

// Flush writes queued output to the port
func (u *USBTransport) Flush() error {
	for len(u.tx.Pending()) > 0 {
		n, err := u.out.Write(u.tx.Pending())
		u.tx.Consume(n)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
