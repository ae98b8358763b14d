package regbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/davidplowman/imx258/internal/monitoring"
)

// Porter is the transport a SerialBus drives. go.bug.st/serial ports
// satisfy it; tests substitute a TestablePort.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// Command/reply framing for the register bridge. The bridge MCU forwards
// each line to the sensor's control interface and answers with one line:
//
//	-> R <addr> <width>
//	<- ok <value>
//	-> W <addr> <width> <value>
//	<- ok
//	<- err <detail>
//
// addr and value are lowercase hex without a 0x prefix, width is the byte
// count in decimal. Exactly one command is in flight at a time.
const maxReplyLen = 128

// SerialBus implements Bus over a line-oriented serial bridge.
type SerialBus struct {
	mu   sync.Mutex
	port Porter
}

// OpenSerialBus opens the serial device at path and wraps it in a
// SerialBus. readTimeout bounds how long a command waits for its reply.
func OpenSerialBus(path string, baud int, readTimeout time.Duration) (*SerialBus, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	monitoring.Logf("regbus: opened serial bridge on %s at %d baud", path, baud)
	return NewSerialBus(port), nil
}

// NewSerialBus wraps an already-open port.
func NewSerialBus(port Porter) *SerialBus {
	return &SerialBus{port: port}
}

// Read issues a read command and parses the returned value.
func (s *SerialBus) Read(ctx context.Context, addr uint16, width Width) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !width.Valid() {
		return 0, fmt.Errorf("%w: invalid width %d", ErrTransport, width)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.command(fmt.Sprintf("R %04x %d", addr, width))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(reply, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad value %q in reply", ErrTransport, reply)
	}
	return uint32(v) & width.Mask(), nil
}

// Write issues a write command. The value is zero-padded to the register
// width so the bridge never has to guess the access size.
func (s *SerialBus) Write(ctx context.Context, addr uint16, width Width, value uint32) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !width.Valid() {
		return fmt.Errorf("%w: invalid width %d", ErrTransport, width)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.command(fmt.Sprintf("W %04x %d %0*x", addr, width, int(width)*2, value&width.Mask()))
	return err
}

// Close closes the underlying port. In-flight commands fail.
func (s *SerialBus) Close() error {
	return s.port.Close()
}

// command sends one line and returns the payload of the "ok" reply.
func (s *SerialBus) command(cmd string) (string, error) {
	if _, err := fmt.Fprintf(s.port, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("%w: send %q: %v", ErrTransport, cmd, err)
	}

	line, err := s.readLine()
	if err != nil {
		return "", err
	}

	switch {
	case line == "ok":
		return "", nil
	case strings.HasPrefix(line, "ok "):
		return strings.TrimSpace(strings.TrimPrefix(line, "ok ")), nil
	case strings.HasPrefix(line, "err"):
		detail := strings.TrimSpace(strings.TrimPrefix(line, "err"))
		return "", fmt.Errorf("%w: bridge: %s", ErrTransport, detail)
	default:
		return "", fmt.Errorf("%w: malformed reply %q", ErrTransport, line)
	}
}

// readLine collects bytes off the port until a newline. The protocol is
// strictly command/reply so there is never more than one line in flight,
// which keeps a byte-at-a-time read loop simple and stateless.
func (s *SerialBus) readLine() (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: port closed while awaiting reply", ErrTransport)
			}
			return "", fmt.Errorf("%w: read reply: %v", ErrTransport, err)
		}
		if n == 0 {
			// go.bug.st/serial signals an expired read timeout as a
			// zero-length read.
			return "", fmt.Errorf("%w: reply timeout", ErrTransport)
		}
		if buf[0] == '\n' {
			return strings.TrimSpace(string(line)), nil
		}
		line = append(line, buf[0])
		if len(line) > maxReplyLen {
			return "", fmt.Errorf("%w: reply exceeds %d bytes", ErrTransport, maxReplyLen)
		}
	}
}
