package regbus

import (
	"context"
	"fmt"
	"sync"
)

// WriteOp records one write seen by a SimBus.
type WriteOp struct {
	Addr  uint16
	Width Width
	Value uint32
}

// SimBus implements Bus over an in-memory byte-addressed register file.
// It backs the dev-mode daemon and the package tests, and provides
// configurable fault injection.
type SimBus struct {
	mu   sync.Mutex
	regs map[uint16]byte

	// ReadError is returned by the next Read call if set, then cleared.
	ReadError error

	// WriteError is returned by the next Write call if set, then cleared.
	WriteError error

	// ReadCalls records the number of Read calls.
	ReadCalls int

	// WriteCalls records the number of Write calls.
	WriteCalls int

	// Closed indicates whether Close was called.
	Closed bool

	failWriteAddr   map[uint16]error
	failAfterWrites int // 1-based write ordinal to fail; 0 = disabled

	writeLog []WriteOp
}

// NewSimBus creates a simulated register file preloaded with the chip
// identity registers so device attach succeeds against it.
func NewSimBus() *SimBus {
	s := &SimBus{
		regs:          make(map[uint16]byte),
		failWriteAddr: make(map[uint16]error),
	}
	// Chip ID 0x0258 at address 0x0016.
	s.regs[0x0016] = 0x02
	s.regs[0x0017] = 0x58
	return s
}

// Preload stores a raw byte in the register file without logging a write.
func (s *SimBus) Preload(addr uint16, val byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[addr] = val
}

// FailWriteAt makes every write touching addr fail with err.
func (s *SimBus) FailWriteAt(addr uint16, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWriteAddr[addr] = err
}

// FailWriteAfter makes the n-th subsequent write call fail (1-based).
func (s *SimBus) FailWriteAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfterWrites = s.WriteCalls + n
}

// Read assembles a big-endian value from width bytes starting at addr.
func (s *SimBus) Read(ctx context.Context, addr uint16, width Width) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !width.Valid() {
		return 0, fmt.Errorf("%w: invalid width %d", ErrTransport, width)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ReadCalls++

	if s.Closed {
		return 0, ErrClosed
	}
	if s.ReadError != nil {
		err := s.ReadError
		s.ReadError = nil
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	buf := make([]byte, width)
	for i := range buf {
		buf[i] = s.regs[addr+uint16(i)]
	}
	return getBE(buf, width), nil
}

// Write scatters the low 8*width bits of value across addr..addr+width-1.
func (s *SimBus) Write(ctx context.Context, addr uint16, width Width, value uint32) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !width.Valid() {
		return fmt.Errorf("%w: invalid width %d", ErrTransport, width)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.WriteCalls++

	if s.Closed {
		return ErrClosed
	}
	if s.WriteError != nil {
		err := s.WriteError
		s.WriteError = nil
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if s.failAfterWrites > 0 && s.WriteCalls >= s.failAfterWrites {
		s.failAfterWrites = 0
		return fmt.Errorf("%w: injected failure at write %d", ErrTransport, s.WriteCalls)
	}
	if err, ok := s.failWriteAddr[addr]; ok {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	buf := make([]byte, width)
	putBE(buf, value, width)
	for i, b := range buf {
		s.regs[addr+uint16(i)] = b
	}
	s.writeLog = append(s.writeLog, WriteOp{Addr: addr, Width: width, Value: value & width.Mask()})
	return nil
}

// Close marks the bus closed. Further operations fail.
func (s *SimBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// WriteLog returns a copy of all recorded writes in order.
func (s *SimBus) WriteLog() []WriteOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WriteOp, len(s.writeLog))
	copy(out, s.writeLog)
	return out
}

// LastWrite returns the most recent write to addr, if any.
func (s *SimBus) LastWrite(addr uint16) (WriteOp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.writeLog) - 1; i >= 0; i-- {
		if s.writeLog[i].Addr == addr {
			return s.writeLog[i], true
		}
	}
	return WriteOp{}, false
}

// Reset clears the write log, call counters and injected faults. The
// register file contents are preserved.
func (s *SimBus) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLog = nil
	s.ReadCalls = 0
	s.WriteCalls = 0
	s.ReadError = nil
	s.WriteError = nil
	s.failAfterWrites = 0
	s.failWriteAddr = make(map[uint16]error)
}
