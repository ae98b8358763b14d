package regbus

import (
	"bytes"
	"io"
	"sync"
)

// TestablePort implements Porter with configurable behaviour for tests.
// Replies are preloaded with AddReadData before the command that consumes
// them; an empty read buffer reads as io.EOF, which SerialBus reports as a
// missing reply.
type TestablePort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// ReadError is returned by the next Read call if set, then cleared.
	ReadError error

	// WriteError is returned by the next Write call if set, then cleared.
	WriteError error

	// CloseError is returned by Close if set.
	CloseError error

	// Closed indicates whether Close was called.
	Closed bool

	// ReadCalls records the number of Read calls.
	ReadCalls int

	// WriteCalls records the number of Write calls.
	WriteCalls int
}

// NewTestablePort creates a TestablePort with empty buffers.
func NewTestablePort() *TestablePort {
	return &TestablePort{}
}

func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++

	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	if p.Closed {
		return 0, io.EOF
	}
	return p.readBuf.Read(b)
}

func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteCalls++

	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	if p.Closed {
		return 0, io.ErrClosedPipe
	}
	return p.writeBuf.Write(b)
}

func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return p.CloseError
}

// AddReadData appends data for subsequent Read calls to return.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(data)
}

// WrittenData returns everything written to the port so far.
func (p *TestablePort) WrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.writeBuf.Bytes()...)
}

// Reset restores the port to its initial state.
func (p *TestablePort) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Reset()
	p.writeBuf.Reset()
	p.ReadError = nil
	p.WriteError = nil
	p.CloseError = nil
	p.Closed = false
	p.ReadCalls = 0
	p.WriteCalls = 0
}
