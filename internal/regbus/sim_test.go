package regbus

import (
	"context"
	"errors"
	"testing"
)

func TestSimBusPreloadsChipID(t *testing.T) {
	bus := NewSimBus()

	id, err := bus.Read(context.Background(), 0x0016, W16)
	if err != nil {
		t.Fatalf("read chip id: %v", err)
	}
	if id != 0x0258 {
		t.Errorf("chip id = %#04x, want 0x0258", id)
	}
}

func TestSimBusByteAddressing(t *testing.T) {
	bus := NewSimBus()
	ctx := context.Background()

	// A 16-bit write lands big-endian across two byte addresses.
	if err := bus.Write(ctx, 0x0340, W16, 0x12ea); err != nil {
		t.Fatalf("write: %v", err)
	}

	hi, err := bus.Read(ctx, 0x0340, W8)
	if err != nil {
		t.Fatalf("read hi: %v", err)
	}
	lo, err := bus.Read(ctx, 0x0341, W8)
	if err != nil {
		t.Fatalf("read lo: %v", err)
	}
	if hi != 0x12 || lo != 0xea {
		t.Errorf("bytes = %#02x %#02x, want 0x12 0xea", hi, lo)
	}

	full, err := bus.Read(ctx, 0x0340, W16)
	if err != nil {
		t.Fatalf("read full: %v", err)
	}
	if full != 0x12ea {
		t.Errorf("16-bit readback = %#04x, want 0x12ea", full)
	}
}

func TestSimBusOneShotErrors(t *testing.T) {
	bus := NewSimBus()
	ctx := context.Background()

	bus.ReadError = errors.New("bad read")
	if _, err := bus.Read(ctx, 0x0016, W16); !errors.Is(err, ErrTransport) {
		t.Errorf("injected read error = %v, want ErrTransport wrap", err)
	}
	if _, err := bus.Read(ctx, 0x0016, W16); err != nil {
		t.Errorf("read error not cleared after one shot: %v", err)
	}

	bus.WriteError = errors.New("bad write")
	if err := bus.Write(ctx, 0x0100, W8, 1); !errors.Is(err, ErrTransport) {
		t.Errorf("injected write error = %v, want ErrTransport wrap", err)
	}
	if err := bus.Write(ctx, 0x0100, W8, 1); err != nil {
		t.Errorf("write error not cleared after one shot: %v", err)
	}
}

func TestSimBusFailWriteAfter(t *testing.T) {
	bus := NewSimBus()
	ctx := context.Background()

	bus.FailWriteAfter(3)
	for i := 0; i < 2; i++ {
		if err := bus.Write(ctx, uint16(0x1000+i), W8, 0); err != nil {
			t.Fatalf("write %d failed early: %v", i, err)
		}
	}
	if err := bus.Write(ctx, 0x1002, W8, 0); err == nil {
		t.Fatal("third write should have failed")
	}
	if err := bus.Write(ctx, 0x1003, W8, 0); err != nil {
		t.Errorf("fault not disarmed after firing: %v", err)
	}
}

func TestSimBusInvalidWidth(t *testing.T) {
	bus := NewSimBus()
	ctx := context.Background()

	if _, err := bus.Read(ctx, 0x0016, 0); !errors.Is(err, ErrTransport) {
		t.Errorf("read width 0 = %v, want ErrTransport wrap", err)
	}
	if err := bus.Write(ctx, 0x0016, 5, 0); !errors.Is(err, ErrTransport) {
		t.Errorf("write width 5 = %v, want ErrTransport wrap", err)
	}
}

func TestSimBusClosed(t *testing.T) {
	bus := NewSimBus()
	ctx := context.Background()

	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := bus.Read(ctx, 0x0016, W16); !errors.Is(err, ErrClosed) {
		t.Errorf("read after close = %v, want ErrClosed", err)
	}
	if err := bus.Write(ctx, 0x0100, W8, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close = %v, want ErrClosed", err)
	}
}

func TestSimBusCancelledContext(t *testing.T) {
	bus := NewSimBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := bus.Read(ctx, 0x0016, W16); !errors.Is(err, ErrTransport) {
		t.Errorf("read with cancelled ctx = %v, want ErrTransport wrap", err)
	}
	if bus.ReadCalls != 0 {
		t.Errorf("cancelled read still hit the register file (%d calls)", bus.ReadCalls)
	}
}

func TestSimBusLastWriteAndReset(t *testing.T) {
	bus := NewSimBus()
	ctx := context.Background()

	bus.Write(ctx, 0x0100, W8, 0x00)
	bus.Write(ctx, 0x0100, W8, 0x01)

	op, ok := bus.LastWrite(0x0100)
	if !ok {
		t.Fatal("LastWrite found nothing")
	}
	if op.Value != 0x01 {
		t.Errorf("LastWrite value = %#x, want 0x01", op.Value)
	}

	bus.Reset()
	if _, ok := bus.LastWrite(0x0100); ok {
		t.Error("write log survived Reset")
	}
	if bus.WriteCalls != 0 {
		t.Error("write counter survived Reset")
	}

	// Register contents survive a reset.
	v, err := bus.Read(ctx, 0x0100, W8)
	if err != nil {
		t.Fatalf("read after reset: %v", err)
	}
	if v != 0x01 {
		t.Errorf("register value after reset = %#x, want 0x01", v)
	}
}
