package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEmptyDeviceConfigDefaults(t *testing.T) {
	cfg := EmptyDeviceConfig()

	if got := cfg.GetBus(); got != BusSerial {
		t.Errorf("GetBus() = %q, want %q", got, BusSerial)
	}
	if got := cfg.GetSerialBaud(); got != 115200 {
		t.Errorf("GetSerialBaud() = %d, want 115200", got)
	}
	if got := cfg.GetReadTimeout(); got != 500*time.Millisecond {
		t.Errorf("GetReadTimeout() = %v, want 500ms", got)
	}
	if got := cfg.GetLanes(); got != 2 {
		t.Errorf("GetLanes() = %d, want 2", got)
	}
	freqs := cfg.GetLinkFreqsHz()
	if len(freqs) != 1 || freqs[0] != 450000000 {
		t.Errorf("GetLinkFreqsHz() = %v, want [450000000]", freqs)
	}
	if got := cfg.GetXClkFreqHz(); got != 24000000 {
		t.Errorf("GetXClkFreqHz() = %d, want 24000000", got)
	}
	if got := cfg.GetChipIDPolicy(); got != ChipIDStrict {
		t.Errorf("GetChipIDPolicy() = %q, want strict", got)
	}
	if !cfg.GetTraceEnabled() {
		t.Error("GetTraceEnabled() = false, want true")
	}
}

func TestLoadDeviceConfigPartial(t *testing.T) {
	path := writeConfigFile(t, `{
		"bus": "sim",
		"chip_id_policy": "lenient",
		"trace_enabled": false
	}`)

	cfg, err := LoadDeviceConfig(path)
	if err != nil {
		t.Fatalf("LoadDeviceConfig: %v", err)
	}

	if got := cfg.GetBus(); got != BusSim {
		t.Errorf("GetBus() = %q, want sim", got)
	}
	if got := cfg.GetChipIDPolicy(); got != ChipIDLenient {
		t.Errorf("GetChipIDPolicy() = %q, want lenient", got)
	}
	if cfg.GetTraceEnabled() {
		t.Error("GetTraceEnabled() = true, want false")
	}
	// Omitted fields keep defaults.
	if got := cfg.GetSerialPort(); got != "/dev/ttyACM0" {
		t.Errorf("GetSerialPort() = %q, want default", got)
	}
}

func TestLoadDeviceConfigRejectsNonJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	if err := os.WriteFile(path, []byte("bus: sim"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadDeviceConfig(path); err == nil {
		t.Error("expected error for non-.json extension")
	}
}

func TestLoadDeviceConfigRejectsBadJSON(t *testing.T) {
	path := writeConfigFile(t, `{"bus": `)
	if _, err := LoadDeviceConfig(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DeviceConfig
		wantErr bool
	}{
		{"empty is valid", DeviceConfig{}, false},
		{"valid serial", DeviceConfig{Bus: ptrString(BusSerial), SerialBaud: ptrInt(9600)}, false},
		{"unknown bus", DeviceConfig{Bus: ptrString("i2c")}, true},
		{"zero baud", DeviceConfig{SerialBaud: ptrInt(0)}, true},
		{"negative timeout", DeviceConfig{ReadTimeoutMS: ptrInt(-1)}, true},
		{"zero lanes", DeviceConfig{Lanes: ptrInt(0)}, true},
		{"negative link freq", DeviceConfig{LinkFreqsHz: []int64{-450000000}}, true},
		{"zero xclk", DeviceConfig{XClkFreqHz: ptrInt64(0)}, true},
		{"unknown policy", DeviceConfig{ChipIDPolicy: ptrString("maybe")}, true},
		{"lenient policy", DeviceConfig{ChipIDPolicy: ptrString(ChipIDLenient)}, false},
		{"four lanes is a shape-valid config", DeviceConfig{Lanes: ptrInt(4)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigTraceFieldsAndPtrHelpers(t *testing.T) {
	cfg := DeviceConfig{
		TraceDB:      ptrString("/tmp/t.db"),
		TraceEnabled: ptrBool(true),
	}
	if got := cfg.GetTraceDB(); got != "/tmp/t.db" {
		t.Errorf("GetTraceDB() = %q", got)
	}
	if !cfg.GetTraceEnabled() {
		t.Error("GetTraceEnabled() = false")
	}
}
