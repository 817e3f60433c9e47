// Package device talks to a pulse generator over a serial port using the
// text command protocol.
package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"pulsegen/core"
	"pulsegen/host/serial"
	"pulsegen/protocol"
)

// DefaultTimeout bounds the wait for one reply
const DefaultTimeout = time.Second

var (
	ErrTimeout         = errors.New("timed out waiting for reply")
	ErrOverflow        = errors.New("device reported overflow")
	ErrClosed          = errors.New("connection closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Options selects how the client frames requests
type Options struct {
	// Bus frames requests with an address byte; otherwise the port is
	// treated as a USB virtual serial port.
	Bus     bool
	Address uint8
	Framing protocol.Framing
	Timeout time.Duration
}

// Settings is the result of GETSETTINGS
type Settings struct {
	Period   uint32
	Channels map[int][]uint32
}

// Client sends requests and matches replies. A background goroutine reads
// the port and splits the input into reply lines; requests are serialized.
type Client struct {
	port serial.Port
	opts Options

	mu    sync.Mutex
	lines chan string
	done  chan struct{}

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
}

// New starts a client on port
func New(port serial.Port, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	c := &Client{
		port:  port,
		opts:  opts,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close stops the reader and closes the port
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.port.Close()
	})
	return err
}

// Err returns the error that stopped the reader, if any
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

func (c *Client) readLoop() {
	defer close(c.lines)

	var frame []byte
	buf := make([]byte, 256)
	for {
		n, err := c.port.Read(buf)
		for _, b := range buf[:n] {
			frame = c.receiveByte(frame, b)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.errMu.Lock()
				c.readErr = err
				c.errMu.Unlock()
			}
			return
		}
	}
}

func (c *Client) receiveByte(frame []byte, b byte) []byte {
	nibble := c.opts.Bus && c.opts.Framing == protocol.FramingNibble
	switch {
	case b&protocol.AddressMark != 0:
		// replies carry the device address; the payload starts after it
		return frame[:0]
	case b == protocol.Terminator && nibble:
		c.emitNibbleFrame(frame)
		return frame[:0]
	case b == protocol.Terminator:
		c.emit(strings.TrimRight(string(frame), "\r"))
		return frame[:0]
	}
	if len(frame) >= protocol.BufferSize {
		return frame
	}
	return append(frame, b)
}

func (c *Client) emitNibbleFrame(frame []byte) {
	if string(frame) == string(protocol.OverflowReply) {
		c.emit(string(frame))
		return
	}
	payload, ok := protocol.DecodeNibbles(nil, frame)
	if !ok {
		return
	}
	for _, line := range strings.Split(string(payload), "\n") {
		c.emit(line)
	}
}

func (c *Client) emit(line string) {
	select {
	case c.lines <- line:
	case <-c.done:
	}
}

// Send writes one request without waiting for a reply
func (c *Client) Send(cmd string) error {
	var out []byte
	if c.opts.Bus {
		out = protocol.AppendFrame(nil, c.opts.Address, []byte(cmd), c.opts.Framing)
	} else {
		out = append([]byte(cmd), protocol.Terminator)
	}
	if _, err := c.port.Write(out); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	return nil
}

func (c *Client) drain() error {
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return ErrClosed
			}
		default:
			return nil
		}
	}
}

func (c *Client) nextLine(deadline <-chan time.Time) (string, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			if err := c.Err(); err != nil {
				return "", fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return "", ErrClosed
		}
		if line == string(protocol.OverflowReply) {
			return "", ErrOverflow
		}
		return line, nil
	case <-deadline:
		return "", ErrTimeout
	}
}

// matchReply reports whether line is the reply head itself or head
// followed by arguments.
func matchReply(line, head string) bool {
	return line == head || strings.HasPrefix(line, head+",")
}

// Request sends cmd and returns the first reply line matching head. Lines
// that do not match are skipped.
func (c *Client) Request(cmd, head string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request(cmd, head)
}

func (c *Client) request(cmd, head string) (string, error) {
	if err := c.drain(); err != nil {
		return "", err
	}
	if err := c.Send(cmd); err != nil {
		return "", err
	}
	deadline := time.After(c.opts.Timeout)
	for {
		line, err := c.nextLine(deadline)
		if err != nil {
			return "", fmt.Errorf("%s: %w", cmd, err)
		}
		if matchReply(line, head) {
			return line, nil
		}
	}
}

// replyArgs strips head and the following comma from line
func replyArgs(line, head string) []byte {
	return []byte(strings.TrimPrefix(strings.TrimPrefix(line, head), ","))
}

func parseUint(line, head string) (uint32, error) {
	args := replyArgs(line, head)
	if len(args) == 0 {
		return 0, fmt.Errorf("%q: %w", line, ErrUnexpectedReply)
	}
	v := protocol.ParseInt(args)
	if v < 0 {
		return 0, fmt.Errorf("%q: %w", line, ErrUnexpectedReply)
	}
	return uint32(v), nil
}

func parseList(line, head string) []uint32 {
	return protocol.ParseList(replyArgs(line, head), nil, core.TableCapacity)
}

// Ping checks that the device answers
func (c *Client) Ping() error {
	_, err := c.Request("PING", "PING")
	return err
}

// Start starts playback
func (c *Client) Start() error {
	_, err := c.Request("START", "START")
	return err
}

// Stop requests a graceful stop
func (c *Client) Stop() error {
	_, err := c.Request("STOP", "STOP")
	return err
}

// Reset restarts the device
func (c *Client) Reset() error {
	_, err := c.Request("RESET", "RESET")
	return err
}

// Trace asks the device to dump its event trace on the debug output
func (c *Client) Trace() error {
	_, err := c.Request("TRACE", "TRACE")
	return err
}

// SetPeriod stages a new period and returns the period the device reports
func (c *Client) SetPeriod(us uint32) (uint32, error) {
	line, err := c.Request(fmt.Sprintf("SETPERIOD,%d", us), "SETPERIOD")
	if err != nil {
		return 0, err
	}
	return parseUint(line, "SETPERIOD")
}

// Period returns the staged period
func (c *Client) Period() (uint32, error) {
	line, err := c.Request("GETPERIOD", "PERIOD")
	if err != nil {
		return 0, err
	}
	return parseUint(line, "PERIOD")
}

// SetChannel stages toggle times for ch and returns the times the device
// accepted.
func (c *Client) SetChannel(ch int, times []uint32) ([]uint32, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SETCH,%d", ch)
	for _, t := range times {
		fmt.Fprintf(&sb, ",%d", t)
	}
	head := fmt.Sprintf("SETCH,%d", ch)
	line, err := c.Request(sb.String(), head)
	if err != nil {
		return nil, err
	}
	return parseList(line, head), nil
}

// Channel reads back the toggle times of ch
func (c *Client) Channel(ch int) ([]uint32, error) {
	head := fmt.Sprintf("CH,%d", ch)
	line, err := c.Request(fmt.Sprintf("GETCH,%d", ch), head)
	if err != nil {
		return nil, err
	}
	return parseList(line, head), nil
}

// Settings reads the period and every channel with toggles
func (c *Client) Settings() (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, err := c.request("GETSETTINGS", "PERIOD")
	if err != nil {
		return Settings{}, err
	}
	s := Settings{Channels: make(map[int][]uint32)}
	if s.Period, err = parseUint(line, "PERIOD"); err != nil {
		return Settings{}, err
	}

	deadline := time.After(c.opts.Timeout)
	for {
		line, err := c.nextLine(deadline)
		if err != nil {
			return Settings{}, fmt.Errorf("GETSETTINGS: %w", err)
		}
		if line == "" {
			return s, nil
		}
		if !strings.HasPrefix(line, "CH,") {
			return Settings{}, fmt.Errorf("%q: %w", line, ErrUnexpectedReply)
		}
		tok := protocol.NewTokenizer([]byte(line[len("CH,"):]))
		ch, ok := tok.NextInt()
		if !ok {
			return Settings{}, fmt.Errorf("%q: %w", line, ErrUnexpectedReply)
		}
		s.Channels[int(ch)] = protocol.ParseList(tok.RestOfLine(), nil, core.TableCapacity)
	}
}

// SetAddress changes the device bus address. A bus client follows the
// device to the new address.
func (c *Client) SetAddress(addr uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := fmt.Sprintf("SETID,%d", addr)
	if _, err := c.request(head, head); err != nil {
		return err
	}
	if c.opts.Bus && c.opts.Address != protocol.BroadcastAddress {
		c.opts.Address = addr
	}
	return nil
}

// Address returns the device bus address
func (c *Client) Address() (uint8, error) {
	line, err := c.Request("GETID", "ID")
	if err != nil {
		return 0, err
	}
	v, err := parseUint(line, "ID")
	if err != nil {
		return 0, err
	}
	if v > protocol.MaxAddress {
		return 0, fmt.Errorf("%q: %w", line, ErrUnexpectedReply)
	}
	return uint8(v), nil
}

// Version returns the software, hardware and compatibility versions
func (c *Client) Version() (core.VersionInfo, error) {
	line, err := c.Request("VERSION", "VERSION")
	if err != nil {
		return core.VersionInfo{}, err
	}
	parts := strings.Split(string(replyArgs(line, "VERSION")), ",")
	if len(parts) != 3 {
		return core.VersionInfo{}, fmt.Errorf("%q: %w", line, ErrUnexpectedReply)
	}
	return core.VersionInfo{Software: parts[0], Hardware: parts[1], Compatibility: parts[2]}, nil
}

// replyHeads maps command names to the head of their reply. Commands not
// listed do not reply.
var replyHeads = map[string]string{
	"START":     "START",
	"STOP":      "STOP",
	"SETPERIOD": "SETPERIOD",
	"SETCH":     "SETCH",
	"GETPERIOD": "PERIOD",
	"GETCH":     "CH",
	"PING":      "PING",
	"SETID":     "SETID",
	"GETID":     "ID",
	"VERSION":   "VERSION",
	"RESET":     "RESET",
	"TRACE":     "TRACE",
}

// Exchange sends one command line and returns its reply, or an empty string
// for commands that do not reply.
func (c *Client) Exchange(line string) (string, error) {
	tok := protocol.NewTokenizer([]byte(line))
	name, ok := tok.Next()
	if !ok {
		return "", nil
	}
	cmd := strings.ToUpper(string(name))

	if cmd == "GETSETTINGS" {
		s, err := c.Settings()
		if err != nil {
			return "", err
		}
		return FormatSettings(s), nil
	}
	head, ok := replyHeads[cmd]
	if !ok {
		return "", c.Send(line)
	}
	return c.Request(line, head)
}

// FormatSettings renders s the way the device reports it
func FormatSettings(s Settings) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PERIOD,%d", s.Period)
	for ch := 0; ch < core.MaxChannels; ch++ {
		times, ok := s.Channels[ch]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\nCH,%d,", ch)
		for i, t := range times {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%d", t)
		}
	}
	return sb.String()
}

// RunScript sends every line of r. Blank lines and lines starting with "//"
// are skipped. Replies are written to out, one per line.
func (c *Client) RunScript(r io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		reply, err := c.Exchange(line)
		if err != nil {
			return fmt.Errorf("script line %d: %w", lineNo, err)
		}
		if reply != "" && out != nil {
			fmt.Fprintln(out, reply)
		}
	}
	return sc.Err()
}
