// Package protocol implements the text command protocol of the pulse generator:
// tokenizing, reply building and the bus and USB framings.
package protocol

// Version is the firmware software version reported by VERSION
const Version = "1.2.0"

// Protocol constants
const (
	BufferSize = 512 // receive and transmit buffer size of every transport
	Terminator = '\n'

	AddressMark      = 0x80 // high bit tags the address byte of a bus frame
	AddressMask      = 0x7F
	MaxAddress       = 127
	BroadcastAddress = 0x7F

	NibbleTag  = 0x30 // data bytes of a nibble frame are NibbleTag|nibble
	NibbleMask = 0x0F
	EscapeByte = 0x1B // leaves nibble framing
)

// OverflowReply is sent in place of a reply or request that did not fit.
var OverflowReply = []byte("OVRFLW")

// ReplyWriter accepts one reply payload. Implementations add their own
// framing and return the number of payload bytes accepted, 0 when the reply
// was dropped.
type ReplyWriter interface {
	WriteReply(p []byte) int
}

// Framing selects how bus payloads are carried
type Framing uint8

const (
	FramingASCII Framing = iota
	FramingNibble
)

func (f Framing) String() string {
	if f == FramingNibble {
		return "nibble"
	}
	return "ascii"
}

// AddressScheme selects which bus frames a device accepts
type AddressScheme uint8

const (
	// AddressNone is used by devices without a bus
	AddressNone AddressScheme = iota
	// AddressOwn accepts frames addressed to the device only
	AddressOwn
	// AddressBroadcast also accepts frames sent to BroadcastAddress
	AddressBroadcast
)

func (s AddressScheme) String() string {
	switch s {
	case AddressOwn:
		return "own"
	case AddressBroadcast:
		return "broadcast"
	}
	return "none"
}
