package protocol

// Delimiters separate command tokens
const Delimiters = "\n\r\t, "

func isDelimiter(b byte) bool {
	switch b {
	case '\n', '\r', '\t', ',', ' ':
		return true
	}
	return false
}

func isLineEnd(b byte) bool {
	return b == '\n' || b == '\r'
}

// Tokenizer walks the tokens of one received message. Tokens alias the
// message buffer.
type Tokenizer struct {
	data []byte
	pos  int
	// last is the delimiter that ended the previous token, 0 at end of data
	last byte
}

// NewTokenizer creates a tokenizer over data
func NewTokenizer(data []byte) *Tokenizer {
	return &Tokenizer{data: data}
}

// Next returns the next token, skipping leading delimiters
func (t *Tokenizer) Next() ([]byte, bool) {
	for t.pos < len(t.data) && isDelimiter(t.data[t.pos]) {
		t.pos++
	}
	if t.pos >= len(t.data) {
		t.last = 0
		return nil, false
	}
	start := t.pos
	for t.pos < len(t.data) && !isDelimiter(t.data[t.pos]) {
		t.pos++
	}
	tok := t.data[start:t.pos]
	t.last = 0
	if t.pos < len(t.data) {
		t.last = t.data[t.pos]
		t.pos++
	}
	return tok, true
}

// NextInt returns the next token parsed with ParseInt
func (t *Tokenizer) NextInt() (int64, bool) {
	tok, ok := t.Next()
	if !ok {
		return 0, false
	}
	return ParseInt(tok), true
}

// RestOfLine returns the remainder of the current line and moves past its
// line ending. It is empty when the previous token ended the line.
func (t *Tokenizer) RestOfLine() []byte {
	if isLineEnd(t.last) {
		return nil
	}
	start := t.pos
	for t.pos < len(t.data) && !isLineEnd(t.data[t.pos]) {
		t.pos++
	}
	line := t.data[start:t.pos]
	t.last = 0
	if t.pos < len(t.data) {
		t.last = t.data[t.pos]
		t.pos++
	}
	return line
}

// SkipLine discards the remainder of the current line
func (t *Tokenizer) SkipLine() {
	t.RestOfLine()
}

// ParseInt converts the leading decimal digits of b, after optional spaces
// and a sign. Text without digits yields 0. Values saturate at the int32
// range.
func ParseInt(b []byte) int64 {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	neg := false
	if i < len(b) && (b[i] == '-' || b[i] == '+') {
		neg = b[i] == '-'
		i++
	}
	var v int64
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		if v < 1<<31 {
			v = v*10 + int64(b[i]-'0')
		}
	}
	if neg {
		v = -v
		if v < -(1 << 31) {
			v = -(1 << 31)
		}
		return v
	}
	if v > 1<<31-1 {
		v = 1<<31 - 1
	}
	return v
}

// ParseList extracts up to max comma separated unsigned values from line and
// appends them to dst. Digits accumulate into the current value, a comma
// ends it, everything else is ignored. Values saturate at 2^32-1.
func ParseList(line []byte, dst []uint32, max int) []uint32 {
	var cur uint64
	digits := 0
	count := 0
	for _, b := range line {
		if count >= max {
			return dst
		}
		switch {
		case b >= '0' && b <= '9':
			if cur <= 0xFFFFFFFF {
				cur = cur*10 + uint64(b-'0')
			}
			digits++
		case b == ',':
			if digits > 0 {
				dst = append(dst, saturate32(cur))
				count++
			}
			cur, digits = 0, 0
		}
	}
	if digits > 0 && count < max {
		dst = append(dst, saturate32(cur))
	}
	return dst
}

func saturate32(v uint64) uint32 {
	if v > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(v)
}
