package protocol

// ReplyBuffer builds one reply in a fixed scratch buffer without touching
// the heap. Appends that do not fit are truncated and flagged.
type ReplyBuffer struct {
	buf       [BufferSize - 2]byte // room for an address byte and the terminator
	pos       int
	truncated bool
}

// Append adds raw bytes
func (r *ReplyBuffer) Append(data []byte) {
	n := copy(r.buf[r.pos:], data)
	r.pos += n
	if n < len(data) {
		r.truncated = true
	}
}

// AppendString adds a string
func (r *ReplyBuffer) AppendString(s string) {
	n := copy(r.buf[r.pos:], s)
	r.pos += n
	if n < len(s) {
		r.truncated = true
	}
}

// AppendByte adds one byte
func (r *ReplyBuffer) AppendByte(b byte) {
	if r.pos >= len(r.buf) {
		r.truncated = true
		return
	}
	r.buf[r.pos] = b
	r.pos++
}

// AppendUint adds the decimal form of v
func (r *ReplyBuffer) AppendUint(v uint32) {
	var tmp [10]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	r.Append(tmp[i:])
}

// AppendInt adds the decimal form of v
func (r *ReplyBuffer) AppendInt(v int64) {
	if v < 0 {
		r.AppendByte('-')
		v = -v
	}
	r.AppendUint(uint32(v))
}

// AppendList adds values joined by commas
func (r *ReplyBuffer) AppendList(values []uint32) {
	for i, v := range values {
		if i > 0 {
			r.AppendByte(',')
		}
		r.AppendUint(v)
	}
}

// Result returns the accumulated reply
func (r *ReplyBuffer) Result() []byte {
	return r.buf[:r.pos]
}

// Len returns the reply length
func (r *ReplyBuffer) Len() int {
	return r.pos
}

// Truncated reports whether an append was cut short
func (r *ReplyBuffer) Truncated() bool {
	return r.truncated
}

// Reset clears the buffer
func (r *ReplyBuffer) Reset() {
	r.pos = 0
	r.truncated = false
}

// TxBuffer queues framed output until the transport drains it.
// A frame that does not fit replaces the queue contents with the overflow
// frame the caller supplies.
type TxBuffer struct {
	buf [BufferSize]byte
	n   int
}

// Queue appends frame. When it does not fit, the queue is cleared and
// overflow is stored instead; Queue then returns false.
func (t *TxBuffer) Queue(frame, overflow []byte) bool {
	if t.n+len(frame) <= len(t.buf) {
		t.n += copy(t.buf[t.n:], frame)
		return true
	}
	t.n = copy(t.buf[:], overflow)
	return false
}

// Pending returns the queued bytes
func (t *TxBuffer) Pending() []byte {
	return t.buf[:t.n]
}

// Consume drops the first n queued bytes
func (t *TxBuffer) Consume(n int) {
	if n >= t.n {
		t.n = 0
		return
	}
	copy(t.buf[:], t.buf[n:t.n])
	t.n -= n
}

// Reset clears the queue
func (t *TxBuffer) Reset() {
	t.n = 0
}

// FifoBuffer is a circular buffer for serial I/O
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
	size  int
}

// NewFifoBuffer creates a new FifoBuffer with the specified capacity
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends data to the FIFO buffer
func (f *FifoBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		nextWrite := (f.write + 1) % f.size
		if nextWrite == f.read {
			// Buffer full
			break
		}
		f.buf[f.write] = b
		f.write = nextWrite
		written++
	}
	return written
}

// Read reads up to len(data) bytes from the FIFO buffer
func (f *FifoBuffer) Read(data []byte) int {
	read := 0
	for i := range data {
		if f.read == f.write {
			// Buffer empty
			break
		}
		data[i] = f.buf[f.read]
		f.read = (f.read + 1) % f.size
		read++
	}
	return read
}

// Available returns the number of bytes available for reading
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return f.size - f.read + f.write
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	return f.size - f.Available() - 1
}

// Data returns available data as a slice
// When wrapped, this copies data into a contiguous slice for protocol processing
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		// Simple case: data is contiguous
		return f.buf[f.read:f.write]
	}
	// Wrapped case: copy both segments into contiguous slice
	// This is critical for correct message parsing
	avail := f.Available()
	result := make([]byte, avail)

	// Copy first segment (read to end of buffer)
	firstLen := f.size - f.read
	copy(result, f.buf[f.read:])

	// Copy second segment (start of buffer to write)
	copy(result[firstLen:], f.buf[:f.write])

	return result
}

// Pop removes n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	for i := 0; i < n && f.read != f.write; i++ {
		f.read = (f.read + 1) % f.size
	}
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}
