// Package regbus provides the register bus abstraction the sensor core
// drives: a 16-bit address space holding 1..4 byte big-endian values.
//
// Three implementations are provided: SerialBus bridges commands over a
// serial line to real hardware, SimBus is an in-memory register file for
// development and tests, and TraceBus decorates another bus with register
// operation tracing.
package regbus

import (
	"context"
	"errors"
	"fmt"
)

// Width is the size of a register access in bytes.
type Width uint8

// Register access widths.
const (
	W8  Width = 1
	W16 Width = 2
	W24 Width = 3
	W32 Width = 4
)

// Valid reports whether w is a supported access width.
func (w Width) Valid() bool {
	return w >= W8 && w <= W32
}

// Mask returns the value mask for the width. Only the low 8*w bits of a
// value are carried on the wire; writes silently drop anything above, the
// same way the hardware path does.
func (w Width) Mask() uint32 {
	if w >= W32 {
		return 0xffffffff
	}
	return 1<<(8*uint(w)) - 1
}

// ErrTransport is the sentinel wrapped by every bus I/O failure, so callers
// can classify transport errors with errors.Is without knowing which bus
// implementation produced them.
var ErrTransport = errors.New("register bus transport error")

// ErrClosed is returned for operations on a closed bus.
var ErrClosed = fmt.Errorf("%w: bus closed", ErrTransport)

// RegWrite is one entry of a canned register sequence. Sensor setup tables
// are flat lists of 8-bit writes applied in order; later entries may
// overwrite earlier addresses (last write wins).
type RegWrite struct {
	Addr uint16
	Val  uint8
}

// Bus is the raw register transport. All multi-byte values are big-endian
// on the wire. Implementations perform a single attempt per call; retry
// policy, if any, belongs to the caller.
type Bus interface {
	// Read returns the value held at addr, assembled from width bytes.
	Read(ctx context.Context, addr uint16, width Width) (uint32, error)

	// Write stores the low 8*width bits of value at addr.
	Write(ctx context.Context, addr uint16, width Width, value uint32) error

	// Close releases the transport.
	Close() error
}

// WriteSeq applies a canned register sequence in order, stopping at the
// first failure and reporting the failing address. Applied entries are not
// rolled back.
func WriteSeq(ctx context.Context, b Bus, seq []RegWrite) error {
	for _, r := range seq {
		if err := b.Write(ctx, r.Addr, W8, uint32(r.Val)); err != nil {
			return fmt.Errorf("write reg 0x%04x: %w", r.Addr, err)
		}
	}
	return nil
}

// putBE packs the low 8*width bits of value into buf, most significant
// byte first. buf must be at least width bytes long.
func putBE(buf []byte, value uint32, width Width) {
	value &= width.Mask()
	for i := 0; i < int(width); i++ {
		shift := 8 * (int(width) - 1 - i)
		buf[i] = byte(value >> shift)
	}
}

// getBE assembles a big-endian value from the first width bytes of buf.
func getBE(buf []byte, width Width) uint32 {
	var v uint32
	for i := 0; i < int(width); i++ {
		v = v<<8 | uint32(buf[i])
	}
	return v
}
