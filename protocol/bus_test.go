package protocol

import (
	"bytes"
	"testing"
)

type capture struct {
	msgs []string
}

func (c *capture) handle(msg []byte, w ReplyWriter) {
	c.msgs = append(c.msgs, string(msg))
	w.WriteReply([]byte("ACK"))
}

func frame(addr uint8, payload string) []byte {
	return AppendFrame(nil, addr, []byte(payload), FramingASCII)
}

func TestBusTransportAddressMatch(t *testing.T) {
	var out bytes.Buffer
	bus := NewBusTransport(NewAddress(5), AddressOwn, FramingASCII, &out)
	c := &capture{}
	bus.SetHandler(c.handle)

	bus.Receive(frame(3, "PING"))
	bus.Receive(frame(5, "GETID"))
	bus.Receive(frame(BroadcastAddress, "STOP"))
	bus.Receive([]byte("stray bytes\n"))

	if len(c.msgs) != 1 || c.msgs[0] != "GETID" {
		t.Fatalf("Expected only GETID, got %q", c.msgs)
	}

	if err := bus.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	want := []byte{0x85, 'A', 'C', 'K', '\n'}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("Expected %v, got %v", want, out.Bytes())
	}
}

func TestBusTransportBroadcast(t *testing.T) {
	var out bytes.Buffer
	bus := NewBusTransport(NewAddress(5), AddressBroadcast, FramingASCII, &out)
	c := &capture{}
	bus.SetHandler(c.handle)

	bus.Receive(frame(BroadcastAddress, "STOP"))
	if len(c.msgs) != 1 || c.msgs[0] != "STOP" {
		t.Errorf("Broadcast frame not accepted: %q", c.msgs)
	}
}

func TestBusTransportSplitDelivery(t *testing.T) {
	var out bytes.Buffer
	bus := NewBusTransport(NewAddress(1), AddressOwn, FramingASCII, &out)
	c := &capture{}
	bus.SetHandler(c.handle)

	f := frame(1, "SETCH,0,1,2")
	for _, b := range f {
		bus.Receive([]byte{b})
	}
	if len(c.msgs) != 1 || c.msgs[0] != "SETCH,0,1,2" {
		t.Errorf("Unexpected messages %q", c.msgs)
	}
}

func TestBusTransportAddressChange(t *testing.T) {
	var out bytes.Buffer
	addr := NewAddress(1)
	bus := NewBusTransport(addr, AddressOwn, FramingASCII, &out)
	c := &capture{}
	bus.SetHandler(c.handle)

	addr.SetAddress(200)
	if addr.Address() != 200&AddressMask {
		t.Errorf("Expected masked address, got %d", addr.Address())
	}
	addr.SetAddress(9)
	bus.Receive(frame(1, "PING"))
	bus.Receive(frame(9, "PING"))
	if len(c.msgs) != 1 {
		t.Errorf("Expected one message for the new address, got %d", len(c.msgs))
	}
	if out.Len() != 0 || bus.Pending()[0] != 0x89 {
		t.Errorf("Reply should carry the new address, got %v", bus.Pending())
	}
}

func TestBusTransportInboundOverflow(t *testing.T) {
	var out bytes.Buffer
	bus := NewBusTransport(NewAddress(2), AddressOwn, FramingASCII, &out)
	c := &capture{}
	bus.SetHandler(c.handle)

	payload := bytes.Repeat([]byte{'1'}, BufferSize)
	bus.Receive(AppendFrame(nil, 2, payload, FramingASCII))

	if len(c.msgs) != 0 {
		t.Fatalf("Oversized frame should be dropped, got %d messages", len(c.msgs))
	}
	want := AppendFrame(nil, 2, OverflowReply, FramingASCII)
	if !bytes.Equal(bus.Pending(), want) {
		t.Errorf("Expected overflow frame %q, got %q", want, bus.Pending())
	}
}

func TestBusTransportOutboundOverflow(t *testing.T) {
	var out bytes.Buffer
	bus := NewBusTransport(NewAddress(2), AddressOwn, FramingASCII, &out)

	big := bytes.Repeat([]byte{'x'}, 300)
	if bus.WriteReply(big) != len(big) {
		t.Fatal("First reply should fit")
	}
	if bus.WriteReply(big) != 0 {
		t.Error("Second reply should overflow the queue")
	}
	want := AppendFrame(nil, 2, OverflowReply, FramingASCII)
	if !bytes.Equal(bus.Pending(), want) {
		t.Errorf("Expected overflow frame, got %d bytes", len(bus.Pending()))
	}

	if bus.WriteReply(bytes.Repeat([]byte{'x'}, BufferSize)) != 0 {
		t.Error("Reply larger than a frame should be dropped")
	}
}

func TestNibbleRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x7F, 0x80, 0xFF, '\n', 'A'}
	enc := AppendNibbles(nil, payload)

	if len(enc) != 2*len(payload) {
		t.Fatalf("Expected %d nibbles, got %d", 2*len(payload), len(enc))
	}
	for _, b := range enc {
		if b&0xF0 != NibbleTag {
			t.Errorf("Nibble byte %#x is not tagged", b)
		}
	}
	dec, ok := DecodeNibbles(nil, enc)
	if !ok || !bytes.Equal(dec, payload) {
		t.Errorf("Round trip failed: %v -> %v", payload, dec)
	}

	if _, ok := DecodeNibbles(nil, enc[:3]); ok {
		t.Error("Odd nibble count should be rejected")
	}
}

func TestBusTransportNibbleFraming(t *testing.T) {
	var out bytes.Buffer
	bus := NewBusTransport(NewAddress(4), AddressOwn, FramingNibble, &out)
	c := &capture{}
	bus.SetHandler(c.handle)

	bus.Receive(AppendFrame(nil, 4, []byte("PING"), FramingNibble))
	if len(c.msgs) != 1 || c.msgs[0] != "PING" {
		t.Fatalf("Unexpected messages %q", c.msgs)
	}
	want := AppendFrame(nil, 4, []byte("ACK"), FramingNibble)
	if !bytes.Equal(bus.Pending(), want) {
		t.Errorf("Expected nibble reply %v, got %v", want, bus.Pending())
	}

	// odd nibble count is dropped
	bus.Receive([]byte{0x84, 0x35, '\n'})
	if len(c.msgs) != 1 {
		t.Error("Invalid nibble frame should be dropped")
	}
}

func TestBusTransportEscapeLeavesNibbleMode(t *testing.T) {
	var out bytes.Buffer
	bus := NewBusTransport(NewAddress(4), AddressOwn, FramingNibble, &out)
	c := &capture{}
	bus.SetHandler(c.handle)

	bus.Receive([]byte{0x84, EscapeByte})
	bus.Receive([]byte("PING\n"))

	if bus.Framing() != FramingASCII {
		t.Fatalf("Expected ASCII framing, got %s", bus.Framing())
	}
	if len(c.msgs) != 1 || c.msgs[0] != "PING" {
		t.Errorf("Expected PING after the escape, got %q", c.msgs)
	}
}
