package protocol

import (
	"io"
	"sync/atomic"
)

// AppendNibbles appends the nibble encoding of payload: every byte becomes
// NibbleTag|high followed by NibbleTag|low.
func AppendNibbles(dst, payload []byte) []byte {
	for _, b := range payload {
		dst = append(dst, NibbleTag|(b>>4), NibbleTag|(b&NibbleMask))
	}
	return dst
}

// DecodeNibbles appends the bytes carried by a nibble encoded frame to dst.
// Bytes without the nibble tag are skipped. An odd number of nibbles makes
// the frame invalid.
func DecodeNibbles(dst, src []byte) ([]byte, bool) {
	var hi byte
	half := false
	for _, b := range src {
		if b&NibbleTag != NibbleTag {
			continue
		}
		if !half {
			hi = b & NibbleMask
			half = true
			continue
		}
		dst = append(dst, hi<<4|(b&NibbleMask))
		half = false
	}
	return dst, !half
}

// AppendFrame appends one bus frame: the address byte, the payload in the
// given framing and the terminator.
func AppendFrame(dst []byte, addr uint8, payload []byte, framing Framing) []byte {
	dst = append(dst, AddressMark|(addr&AddressMask))
	if framing == FramingNibble {
		dst = AppendNibbles(dst, payload)
	} else {
		dst = append(dst, payload...)
	}
	return append(dst, Terminator)
}

// FrameSize returns the size AppendFrame produces for a payload of n bytes.
func FrameSize(n int, framing Framing) int {
	if framing == FramingNibble {
		n *= 2
	}
	return n + 2
}

// Address holds a bus address that can be read from interrupt context.
type Address struct {
	v uint32
}

// NewAddress returns an Address set to addr.
func NewAddress(addr uint8) *Address {
	return &Address{v: uint32(addr & AddressMask)}
}

// Address returns the current address
func (a *Address) Address() uint8 {
	return uint8(atomic.LoadUint32(&a.v))
}

// SetAddress replaces the address. Values above MaxAddress are masked.
func (a *Address) SetAddress(addr uint8) {
	atomic.StoreUint32(&a.v, uint32(addr&AddressMask))
}

// MessageHandler receives a complete inbound message together with the
// writer its replies go to.
type MessageHandler func(msg []byte, w ReplyWriter)

// BusTransport frames traffic on a multidrop serial bus.
//
// Inbound, the transport listens only after an address byte naming this
// device (or the broadcast address, depending on the scheme) and collects
// bytes up to the terminator. Outbound, replies are framed with the device
// address and queued until Flush.
type BusTransport struct {
	addr    *Address
	scheme  AddressScheme
	framing uint32
	out     io.Writer
	handler MessageHandler

	rx        [BufferSize]byte
	rxLen     int
	listening bool
	overflow  bool
	decoded   [BufferSize / 2]byte

	tx      TxBuffer
	scratch [BufferSize]byte
}

// NewBusTransport creates a bus transport writing to out.
func NewBusTransport(addr *Address, scheme AddressScheme, framing Framing, out io.Writer) *BusTransport {
	return &BusTransport{
		addr:    addr,
		scheme:  scheme,
		framing: uint32(framing),
		out:     out,
	}
}

// SetHandler sets the function receiving inbound messages
func (b *BusTransport) SetHandler(h MessageHandler) {
	b.handler = h
}

// Framing returns the current framing mode
func (b *BusTransport) Framing() Framing {
	return Framing(atomic.LoadUint32(&b.framing))
}

// SetFraming switches the framing mode
func (b *BusTransport) SetFraming(f Framing) {
	atomic.StoreUint32(&b.framing, uint32(f))
}

func (b *BusTransport) accepts(addr uint8) bool {
	if addr == b.addr.Address() {
		return true
	}
	return b.scheme == AddressBroadcast && addr == BroadcastAddress
}

// Receive feeds raw bus bytes into the transport. Complete frames addressed
// to this device are passed to the handler before Receive returns.
func (b *BusTransport) Receive(data []byte) {
	for _, c := range data {
		b.receiveByte(c)
	}
}

func (b *BusTransport) receiveByte(c byte) {
	if c&AddressMark != 0 {
		b.listening = b.accepts(c & AddressMask)
		b.rxLen = 0
		b.overflow = false
		return
	}
	if !b.listening {
		return
	}
	switch {
	case c == Terminator:
		b.deliver()
		b.listening = false
		b.rxLen = 0
		b.overflow = false
	case c == EscapeByte && b.Framing() == FramingNibble:
		b.SetFraming(FramingASCII)
	case b.rxLen < len(b.rx)-1:
		b.rx[b.rxLen] = c
		b.rxLen++
	default:
		b.overflow = true
	}
}

func (b *BusTransport) deliver() {
	if b.overflow {
		b.WriteReply(OverflowReply)
		return
	}
	if b.handler == nil {
		return
	}
	msg := b.rx[:b.rxLen]
	if b.Framing() == FramingNibble {
		decoded, ok := DecodeNibbles(b.decoded[:0], msg)
		if !ok {
			return
		}
		msg = decoded
	}
	b.handler(msg, b)
}

// WriteReply frames p with the device address and queues it. A reply too
// large for a frame is dropped; one that does not fit the queue turns the
// queue into an overflow frame.
func (b *BusTransport) WriteReply(p []byte) int {
	framing := b.Framing()
	if FrameSize(len(p), framing) > BufferSize {
		return 0
	}
	addr := b.addr.Address()
	frame := AppendFrame(b.scratch[:0], addr, p, framing)
	var ovf [16]byte
	overflow := AppendFrame(ovf[:0], addr, OverflowReply, FramingASCII)
	if !b.tx.Queue(frame, overflow) {
		return 0
	}
	return len(p)
}

// Pending returns the queued output
func (b *BusTransport) Pending() []byte {
	return b.tx.Pending()
}

// Flush writes queued output to the bus
func (b *BusTransport) Flush() error {
	for len(b.tx.Pending()) > 0 {
		n, err := b.out.Write(b.tx.Pending())
		b.tx.Consume(n)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
