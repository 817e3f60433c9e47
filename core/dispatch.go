package core

import "pulsegen/protocol"

// DefaultQueueDepth is the number of messages a Dispatcher buffers
const DefaultQueueDepth = 4

// Message is one complete inbound command message and the writer its
// replies go to.
type Message struct {
	Data  []byte
	Reply protocol.ReplyWriter
}

// Dispatcher hands messages from transports to a single command loop over
// a bounded channel.
type Dispatcher struct {
	proc    *Processor
	queue   chan Message
	dropped uint32
}

// NewDispatcher creates a dispatcher buffering depth messages.
func NewDispatcher(proc *Processor, depth int) *Dispatcher {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Dispatcher{
		proc:  proc,
		queue: make(chan Message, depth),
	}
}

// Submit queues a copy of data. It never blocks; when the queue is full the
// message is dropped and Submit returns false.
func (d *Dispatcher) Submit(data []byte, reply protocol.ReplyWriter) bool {
	msg := Message{Data: append([]byte(nil), data...), Reply: reply}
	select {
	case d.queue <- msg:
		return true
	default:
		d.dropped++
		return false
	}
}

// Handler adapts Submit to a transport message handler.
func (d *Dispatcher) Handler() protocol.MessageHandler {
	return func(msg []byte, w protocol.ReplyWriter) {
		d.Submit(msg, w)
	}
}

// Poll processes at most one queued message and reports whether it did.
func (d *Dispatcher) Poll() bool {
	select {
	case msg := <-d.queue:
		d.proc.Parse(msg.Data, msg.Reply)
		return true
	default:
		return false
	}
}

// Run processes messages until done is closed.
func (d *Dispatcher) Run(done <-chan struct{}) {
	for {
		select {
		case msg := <-d.queue:
			d.proc.Parse(msg.Data, msg.Reply)
		case <-done:
			return
		}
	}
}

// Queue exposes the message channel for loops that select on other events.
func (d *Dispatcher) Queue() <-chan Message {
	return d.queue
}

// Process runs one message received from Queue.
func (d *Dispatcher) Process(msg Message) {
	d.proc.Parse(msg.Data, msg.Reply)
}

// Dropped returns the number of messages lost to a full queue.
func (d *Dispatcher) Dropped() uint32 {
	return d.dropped
}
