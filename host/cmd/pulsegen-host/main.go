package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"pulsegen/host/device"
	"pulsegen/host/serial"
	"pulsegen/protocol"
)

var (
	devicePath = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud       = flag.Int("baud", serial.DefaultBaud, "Baud rate (ignored for USB CDC)")
	bus        = flag.Bool("bus", false, "Frame requests for the multidrop bus")
	addr       = flag.Uint("addr", 0, "Bus address of the device (127 = broadcast)")
	nibble     = flag.Bool("nibble", false, "Use nibble framing on the bus")
	script     = flag.String("script", "", "Run a command script and exit")
	timeout    = flag.Duration("timeout", device.DefaultTimeout, "Reply timeout")
)

func main() {
	flag.Parse()

	if *addr > protocol.MaxAddress {
		fmt.Fprintf(os.Stderr, "Error: address %d out of range 0-%d\n", *addr, protocol.MaxAddress)
		os.Exit(2)
	}

	cfg := serial.DefaultConfig(*devicePath)
	cfg.Baud = *baud
	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := device.Options{
		Bus:     *bus,
		Address: uint8(*addr),
		Timeout: *timeout,
	}
	if *nibble {
		opts.Framing = protocol.FramingNibble
	}
	client := device.New(port, opts)
	defer client.Close()

	if *script != "" {
		if err := runScript(client, *script); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := client.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: device did not answer PING: %v\n", err)
	} else {
		fmt.Printf("Connected to %s\n", *devicePath)
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := handleLine(client, line); quit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func runScript(client *device.Client, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	start := time.Now()
	if err := client.RunScript(f, os.Stdout); err != nil {
		return err
	}
	fmt.Printf("Script %s done in %v\n", path, time.Since(start).Round(time.Millisecond))
	return nil
}

// handleLine runs one REPL line and reports whether the session should end.
func handleLine(client *device.Client, line string) bool {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	if len(args) == 0 {
		return false
	}

	switch strings.ToLower(args[0]) {
	case "quit", "exit", "q":
		fmt.Println("Goodbye!")
		return true
	case "help", "?":
		printHelp()
	case "ping":
		report(client.Ping())
	case "start":
		report(client.Start())
	case "stop":
		report(client.Stop())
	case "reset":
		report(client.Reset())
	case "trace":
		report(client.Trace())
	case "period":
		cmdPeriod(client, args[1:])
	case "ch":
		cmdChannel(client, args[1:])
	case "settings":
		s, err := client.Settings()
		if report(err) {
			fmt.Println(device.FormatSettings(s))
		}
	case "id":
		cmdID(client, args[1:])
	case "version":
		v, err := client.Version()
		if report(err) {
			fmt.Printf("software %s, hardware %s, compatibility %s\n", v.Software, v.Hardware, v.Compatibility)
		}
	case "script":
		if len(args) != 2 {
			fmt.Println("usage: script <file>")
			return false
		}
		report(runScript(client, args[1]))
	default:
		// anything else goes to the device verbatim
		reply, err := client.Exchange(line)
		if report(err) && reply != "" {
			fmt.Println(reply)
		}
	}
	return false
}

func report(err error) bool {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	return true
}

func parseUints(args []string) ([]uint32, error) {
	out := make([]uint32, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", a, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

func cmdPeriod(client *device.Client, args []string) {
	if len(args) == 0 {
		p, err := client.Period()
		if report(err) {
			fmt.Printf("period %d us\n", p)
		}
		return
	}
	v, err := parseUints(args[:1])
	if !report(err) {
		return
	}
	p, err := client.SetPeriod(v[0])
	if report(err) {
		fmt.Printf("period %d us\n", p)
	}
}

func cmdChannel(client *device.Client, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: ch <n> [t1 t2 ...]")
		return
	}
	ch, err := strconv.Atoi(args[0])
	if !report(err) {
		return
	}
	if len(args) == 1 {
		times, err := client.Channel(ch)
		if report(err) {
			fmt.Printf("channel %d: %v\n", ch, times)
		}
		return
	}
	times, err := parseUints(args[1:])
	if !report(err) {
		return
	}
	accepted, err := client.SetChannel(ch, times)
	if report(err) {
		fmt.Printf("channel %d staged: %v\n", ch, accepted)
	}
}

func cmdID(client *device.Client, args []string) {
	if len(args) == 0 {
		a, err := client.Address()
		if report(err) {
			fmt.Printf("address %d\n", a)
		}
		return
	}
	v, err := strconv.ParseUint(args[0], 10, 8)
	if !report(err) {
		return
	}
	if v > protocol.MaxAddress {
		fmt.Fprintf(os.Stderr, "Error: address %d out of range\n", v)
		return
	}
	report(client.SetAddress(uint8(v)))
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  ping                 - Check the device answers")
	fmt.Println("  period [us]          - Read or stage the period")
	fmt.Println("  ch <n> [t1 t2 ...]   - Read or stage toggle times of a channel")
	fmt.Println("  settings             - Read the period and all channels")
	fmt.Println("  start / stop         - Start playback or request a stop")
	fmt.Println("  id [addr]            - Read or set the bus address")
	fmt.Println("  version              - Show firmware versions")
	fmt.Println("  trace                - Dump the engine trace on the debug output")
	fmt.Println("  reset                - Restart the device")
	fmt.Println("  script <file>        - Run a command script")
	fmt.Println("  quit/exit/q          - Exit the program")
	fmt.Println("Anything else is sent to the device as typed.")
	fmt.Println()
}
