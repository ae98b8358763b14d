package regbus

import (
	"context"
	"time"

	"github.com/davidplowman/imx258/internal/monitoring"
	"github.com/davidplowman/imx258/internal/timeutil"
)

// Operation kinds recorded by a TraceBus.
const (
	OpRead  = "read"
	OpWrite = "write"
)

// TraceOp is one recorded bus operation.
type TraceOp struct {
	Time    time.Time
	Op      string
	Addr    uint16
	Width   Width
	Value   uint32 // value written, or value read back on success
	OK      bool
	Err     string
	Latency time.Duration
}

// Recorder consumes trace operations. Recording must not fail the bus
// operation it describes, so the interface has no error return; sinks log
// their own trouble.
type Recorder interface {
	RecordOp(op TraceOp)
}

// TraceBus decorates a Bus, handing every operation to a Recorder with its
// outcome and latency. The decorated bus sees exactly the traffic the
// inner bus would have seen.
type TraceBus struct {
	bus   Bus
	rec   Recorder
	clock timeutil.Clock

	// Debug additionally logs each operation.
	Debug bool
}

// NewTraceBus wraps bus so every operation is recorded to rec. A nil clock
// defaults to the wall clock.
func NewTraceBus(bus Bus, rec Recorder, clock timeutil.Clock) *TraceBus {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &TraceBus{bus: bus, rec: rec, clock: clock}
}

func (t *TraceBus) Read(ctx context.Context, addr uint16, width Width) (uint32, error) {
	start := t.clock.Now()
	v, err := t.bus.Read(ctx, addr, width)
	t.record(TraceOp{
		Time:    start,
		Op:      OpRead,
		Addr:    addr,
		Width:   width,
		Value:   v,
		OK:      err == nil,
		Latency: t.clock.Since(start),
	}, err)
	return v, err
}

func (t *TraceBus) Write(ctx context.Context, addr uint16, width Width, value uint32) error {
	start := t.clock.Now()
	err := t.bus.Write(ctx, addr, width, value)
	t.record(TraceOp{
		Time:    start,
		Op:      OpWrite,
		Addr:    addr,
		Width:   width,
		Value:   value & width.Mask(),
		OK:      err == nil,
		Latency: t.clock.Since(start),
	}, err)
	return err
}

// Close closes the inner bus. Close itself is not recorded.
func (t *TraceBus) Close() error {
	return t.bus.Close()
}

func (t *TraceBus) record(op TraceOp, err error) {
	if err != nil {
		op.Err = err.Error()
	}
	t.rec.RecordOp(op)
	if t.Debug {
		monitoring.Logf("regbus: %s 0x%04x w%d value=0x%x ok=%v err=%q (%v)",
			op.Op, op.Addr, op.Width, op.Value, op.OK, op.Err, op.Latency)
	}
}
