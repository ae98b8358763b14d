package regbus

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestWidthValid(t *testing.T) {
	tests := []struct {
		width Width
		want  bool
	}{
		{0, false},
		{W8, true},
		{W16, true},
		{W24, true},
		{W32, true},
		{5, false},
	}

	for _, tt := range tests {
		if got := tt.width.Valid(); got != tt.want {
			t.Errorf("Width(%d).Valid() = %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestWidthMask(t *testing.T) {
	tests := []struct {
		width Width
		want  uint32
	}{
		{W8, 0xff},
		{W16, 0xffff},
		{W24, 0xffffff},
		{W32, 0xffffffff},
	}

	for _, tt := range tests {
		if got := tt.width.Mask(); got != tt.want {
			t.Errorf("Width(%d).Mask() = %#x, want %#x", tt.width, got, tt.want)
		}
	}
}

func TestBigEndianPacking(t *testing.T) {
	tests := []struct {
		name  string
		value uint32
		width Width
		want  []byte
	}{
		{"w8", 0xab, W8, []byte{0xab}},
		{"w16", 0x0258, W16, []byte{0x02, 0x58}},
		{"w24", 0x123456, W24, []byte{0x12, 0x34, 0x56}},
		{"w32", 0xdeadbeef, W32, []byte{0xde, 0xad, 0xbe, 0xef}},
		{"w8 truncates high bits", 0x1ff, W8, []byte{0xff}},
		{"w16 truncates high bits", 0x1ffdc, W16, []byte{0xff, 0xdc}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.width)
			putBE(buf, tt.value, tt.width)
			for i := range tt.want {
				if buf[i] != tt.want[i] {
					t.Fatalf("putBE(%#x, %d) = % x, want % x", tt.value, tt.width, buf, tt.want)
				}
			}
			if got := getBE(buf, tt.width); got != tt.value&tt.width.Mask() {
				t.Errorf("getBE(% x) = %#x, want %#x", buf, got, tt.value&tt.width.Mask())
			}
		})
	}
}

func TestWriteSeqAppliesInOrder(t *testing.T) {
	bus := NewSimBus()
	seq := []RegWrite{
		{Addr: 0x0136, Val: 0x18},
		{Addr: 0x0137, Val: 0x00},
		{Addr: 0x3051, Val: 0x00},
	}

	if err := WriteSeq(context.Background(), bus, seq); err != nil {
		t.Fatalf("WriteSeq failed: %v", err)
	}

	log := bus.WriteLog()
	if len(log) != len(seq) {
		t.Fatalf("got %d writes, want %d", len(log), len(seq))
	}
	for i, r := range seq {
		if log[i].Addr != r.Addr || log[i].Value != uint32(r.Val) {
			t.Errorf("write %d = {%#04x %#x}, want {%#04x %#x}",
				i, log[i].Addr, log[i].Value, r.Addr, r.Val)
		}
		if log[i].Width != W8 {
			t.Errorf("write %d width = %d, want W8", i, log[i].Width)
		}
	}
}

func TestWriteSeqStopsAtFirstFailure(t *testing.T) {
	bus := NewSimBus()
	bus.FailWriteAt(0x0137, errors.New("nack"))
	seq := []RegWrite{
		{Addr: 0x0136, Val: 0x18},
		{Addr: 0x0137, Val: 0x00},
		{Addr: 0x3051, Val: 0x00},
	}

	err := WriteSeq(context.Background(), bus, seq)
	if err == nil {
		t.Fatal("expected error from WriteSeq")
	}
	if !errors.Is(err, ErrTransport) {
		t.Errorf("error %v does not wrap ErrTransport", err)
	}
	if want := "write reg 0x0137"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not name failing address %q", err, want)
	}

	// The failing write must be the last one attempted.
	if got := len(bus.WriteLog()); got != 1 {
		t.Errorf("got %d applied writes, want 1", got)
	}
	if bus.WriteCalls != 2 {
		t.Errorf("got %d write calls, want 2", bus.WriteCalls)
	}
}
