package sensor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/davidplowman/imx258/internal/regbus"
)

func TestControlRegistrationOrder(t *testing.T) {
	td := newTestDevice(t)

	var names []string
	for _, c := range td.Controls() {
		names = append(names, c.Name)
	}
	want := []string{
		"pixel_rate",
		"vblank",
		"hblank",
		"exposure",
		"analogue_gain",
		"digital_gain",
		"hflip",
		"vflip",
		"test_pattern",
		"test_pattern_red",
		"test_pattern_greenr",
		"test_pattern_blue",
		"test_pattern_greenb",
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("control order = %v, want %v", names, want)
	}
}

func TestControlDefaults(t *testing.T) {
	td := newTestDevice(t)

	tests := []struct {
		name              string
		min, max, def     int64
		readOnly, hasMenu bool
	}{
		{"pixel_rate", 259200000, 259200000, 259200000, true, false},
		{"vblank", 1723, 8380880, 1723, false, false},
		{"hblank", 1144, 1144, 1144, true, false},
		{"exposure", 20, 4821, 1600, false, false},
		{"analogue_gain", 0, 978, 0, false, false},
		{"digital_gain", 256, 4096, 1024, false, false},
		{"hflip", 0, 1, 0, false, false},
		{"vflip", 0, 1, 0, false, false},
		{"test_pattern", 0, 4, 0, false, true},
		{"test_pattern_red", 0, 4095, 4095, false, false},
		{"test_pattern_greenr", 0, 4095, 4095, false, false},
		{"test_pattern_blue", 0, 4095, 4095, false, false},
		{"test_pattern_greenb", 0, 4095, 4095, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := td.Control(tt.name)
			if err != nil {
				t.Fatalf("Control(%q): %v", tt.name, err)
			}
			if c.Min != tt.min || c.Max != tt.max || c.Default != tt.def {
				t.Errorf("range [%d, %d] default %d, want [%d, %d] default %d",
					c.Min, c.Max, c.Default, tt.min, tt.max, tt.def)
			}
			if c.Value != tt.def {
				t.Errorf("value = %d, want default %d", c.Value, tt.def)
			}
			if c.ReadOnly != tt.readOnly {
				t.Errorf("read-only = %v, want %v", c.ReadOnly, tt.readOnly)
			}
			if (len(c.Menu) > 0) != tt.hasMenu {
				t.Errorf("menu = %v, want menu %v", c.Menu, tt.hasMenu)
			}
		})
	}
}

func TestTestPatternMenu(t *testing.T) {
	td := newTestDevice(t)

	c, err := td.Control("test_pattern")
	if err != nil {
		t.Fatalf("Control: %v", err)
	}
	want := []string{"Disabled", "Color Bars", "Solid Color", "Grey Color Bars", "PN9"}
	if !reflect.DeepEqual(c.Menu, want) {
		t.Errorf("menu = %v, want %v", c.Menu, want)
	}
}

func TestSetControlValidation(t *testing.T) {
	td := newTestDevice(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		value int64
	}{
		{"pixel_rate", 259200000}, // read-only
		{"hblank", 1144},          // read-only
		{"vblank", 100},           // below minimum
		{"vblank", 8380881},       // above maximum
		{"exposure", 19},
		{"exposure", 4822},
		{"analogue_gain", -1},
		{"analogue_gain", 979},
		{"digital_gain", 255},
		{"digital_gain", 4097},
		{"hflip", 2},
		{"test_pattern", 5},
		{"test_pattern_red", 4096},
	}
	for _, tt := range tests {
		if err := td.SetControlByName(ctx, tt.name, tt.value); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("set %s=%d err = %v, want invalid argument", tt.name, tt.value, err)
		}
	}

	// Rejected sets leave the stored values alone.
	for _, name := range []string{"vblank", "exposure", "analogue_gain"} {
		c, err := td.Control(name)
		if err != nil {
			t.Fatalf("Control(%q): %v", name, err)
		}
		if c.Value != c.Default {
			t.Errorf("%s value = %d after rejected sets, want default %d", name, c.Value, c.Default)
		}
	}

	if err := td.SetControlByName(ctx, "sharpness", 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown control err = %v, want invalid argument", err)
	}
	if err := td.SetControl(ctx, ControlID(99), 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown control id err = %v, want invalid argument", err)
	}
}

func TestControlByName(t *testing.T) {
	id, ok := ControlByName("vblank")
	if !ok || id != CtrlVBlank {
		t.Errorf("ControlByName(vblank) = %v, %v", id, ok)
	}
	if _, ok := ControlByName("bogus"); ok {
		t.Error("ControlByName accepted an unknown name")
	}
	if got := ControlID(99).String(); got != "ControlID(99)" {
		t.Errorf("unknown id String() = %q", got)
	}
}

func TestUnpoweredSetsAreDeferred(t *testing.T) {
	td := newTestDevice(t)
	ctx := context.Background()

	sets := map[string]int64{
		"analogue_gain":    500,
		"digital_gain":     512,
		"test_pattern":     2, // solid colour
		"test_pattern_red": 100,
		"hflip":            1,
	}
	for name, v := range sets {
		if err := td.SetControlByName(ctx, name, v); err != nil {
			t.Fatalf("set %s=%d: %v", name, v, err)
		}
	}

	if td.bus.WriteCalls != 0 {
		t.Fatalf("unpowered sets reached the bus: %d writes", td.bus.WriteCalls)
	}
	for name, v := range sets {
		c, err := td.Control(name)
		if err != nil {
			t.Fatalf("Control(%q): %v", name, err)
		}
		if c.Value != v {
			t.Errorf("%s value = %d, want %d", name, c.Value, v)
		}
	}

	// The stream start commit replays the recorded values.
	if err := td.SetStreaming(ctx, true); err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	wantRegs := []struct {
		addr  uint16
		value uint32
	}{
		{regAnalogGain, 500},
		{regGRDigitalGain, 512},
		{regRDigitalGain, 512},
		{regBDigitalGain, 512},
		{regGBDigitalGain, 512},
		{regTestPattern, 1}, // menu entry 2 programs register value 1
		{regTestPatternR, 100},
		{regOrientation, 0x01},
	}
	for _, want := range wantRegs {
		w, ok := td.bus.LastWrite(want.addr)
		if !ok {
			t.Errorf("register 0x%04x never written on start", want.addr)
			continue
		}
		if w.Value != want.value {
			t.Errorf("register 0x%04x = %#x, want %#x", want.addr, w.Value, want.value)
		}
	}
}

func TestDigitalGainFanOut(t *testing.T) {
	td := newTestDevice(t)
	ctx := context.Background()

	if err := td.SetStreaming(ctx, true); err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	td.bus.Reset()

	if err := td.SetControl(ctx, CtrlDigitalGain, 2000); err != nil {
		t.Fatalf("set digital_gain: %v", err)
	}

	log := td.bus.WriteLog()
	wantOrder := []uint16{regGRDigitalGain, regRDigitalGain, regBDigitalGain, regGBDigitalGain}
	if len(log) != len(wantOrder) {
		t.Fatalf("fan-out wrote %d registers, want %d", len(log), len(wantOrder))
	}
	for i, addr := range wantOrder {
		if log[i].Addr != addr || log[i].Value != 2000 {
			t.Errorf("fan-out write %d = %+v, want addr 0x%04x value 2000", i, log[i], addr)
		}
	}
}

func TestDigitalGainFanOutStopsAtFailure(t *testing.T) {
	td := newTestDevice(t)
	ctx := context.Background()

	if err := td.SetStreaming(ctx, true); err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	td.bus.Reset()
	td.bus.FailWriteAt(regBDigitalGain, errors.New("nack"))

	err := td.SetControl(ctx, CtrlDigitalGain, 2000)
	if !errors.Is(err, regbus.ErrTransport) {
		t.Fatalf("set digital_gain err = %v, want transport failure", err)
	}
	if !strings.Contains(err.Error(), "0x0212") {
		t.Errorf("error %q does not name the failed register", err)
	}

	// The first two channels carry the new gain; the blue write failed
	// and the second green channel was never attempted.
	for _, addr := range []uint16{regGRDigitalGain, regRDigitalGain} {
		w, ok := td.bus.LastWrite(addr)
		if !ok || w.Value != 2000 {
			t.Errorf("register 0x%04x = %+v (ok=%v), want 2000", addr, w, ok)
		}
	}
	if _, ok := td.bus.LastWrite(regGBDigitalGain); ok {
		t.Error("fan-out continued past the failed channel")
	}

	// The value stays recorded for the next commit to retry.
	c, _ := td.Control("digital_gain")
	if c.Value != 2000 {
		t.Errorf("digital_gain value = %d after failed fan-out, want 2000", c.Value)
	}
}

func TestOrientationRegisterCombinesFlips(t *testing.T) {
	td := newTestDevice(t)
	ctx := context.Background()

	// Poke the write path directly without the full start sequence.
	td.powered = true

	tests := []struct {
		id    ControlID
		value int64
		want  uint32
	}{
		{CtrlHFlip, 1, 0x01},
		{CtrlVFlip, 1, 0x03},
		{CtrlHFlip, 0, 0x02},
		{CtrlVFlip, 0, 0x00},
	}
	for _, tt := range tests {
		if err := td.setControlLocked(ctx, tt.id, tt.value); err != nil {
			t.Fatalf("set %s=%d: %v", tt.id, tt.value, err)
		}
		w, ok := td.bus.LastWrite(regOrientation)
		if !ok || w.Value != tt.want {
			t.Errorf("after %s=%d orientation = %+v (ok=%v), want %#02x",
				tt.id, tt.value, w, ok, tt.want)
		}
	}
}

func TestTestPatternRegisterValues(t *testing.T) {
	td := newTestDevice(t)
	ctx := context.Background()
	td.powered = true

	// Menu order and register encoding differ; solid colour is register
	// value 1 but menu entry 2.
	for i, want := range testPatternValues {
		if err := td.setControlLocked(ctx, CtrlTestPattern, int64(i)); err != nil {
			t.Fatalf("set test_pattern=%d: %v", i, err)
		}
		w, ok := td.bus.LastWrite(regTestPattern)
		if !ok || w.Value != want {
			t.Errorf("menu entry %d wrote %+v (ok=%v), want %d", i, w, ok, want)
		}
	}
}

func TestFlipsLockedWhileStreaming(t *testing.T) {
	td := newTestDevice(t)
	ctx := context.Background()

	if err := td.SetStreaming(ctx, true); err != nil {
		t.Fatalf("start streaming: %v", err)
	}

	for _, id := range []ControlID{CtrlHFlip, CtrlVFlip} {
		if err := td.SetControl(ctx, id, 1); !errors.Is(err, ErrBusy) {
			t.Errorf("set %s while streaming err = %v, want busy", id, err)
		}
	}

	// Everything else stays live during streaming.
	if err := td.SetControl(ctx, CtrlAnalogueGain, 100); err != nil {
		t.Errorf("set analogue_gain while streaming: %v", err)
	}

	if err := td.SetStreaming(ctx, false); err != nil {
		t.Fatalf("stop streaming: %v", err)
	}
	if err := td.SetControl(ctx, CtrlHFlip, 1); err != nil {
		t.Errorf("set hflip after stop: %v", err)
	}
}
