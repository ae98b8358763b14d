package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Bus kinds accepted in the "bus" field.
const (
	BusSerial = "serial"
	BusSim    = "sim"
)

// Chip identity policies accepted in the "chip_id_policy" field.
const (
	ChipIDStrict  = "strict"
	ChipIDLenient = "lenient"
)

// DeviceConfig represents the startup configuration for one sensor device.
// Fields are pointers so a partial JSON file only overrides what it names;
// the Get* methods supply defaults for everything else.
type DeviceConfig struct {
	// Register bus
	Bus           *string `json:"bus,omitempty"`             // "serial" or "sim"
	SerialPort    *string `json:"serial_port,omitempty"`     // e.g. "/dev/ttyACM0"
	SerialBaud    *int    `json:"serial_baud,omitempty"`     // e.g. 115200
	ReadTimeoutMS *int    `json:"read_timeout_ms,omitempty"` // per-command reply deadline

	// CSI2 wiring, validated against what the sensor supports
	Lanes       *int    `json:"lanes,omitempty"`
	LinkFreqsHz []int64 `json:"link_freqs_hz,omitempty"`
	XClkFreqHz  *int64  `json:"xclk_freq_hz,omitempty"`

	// Identity check behaviour at attach
	ChipIDPolicy *string `json:"chip_id_policy,omitempty"` // "strict" or "lenient"

	// Register trace capture
	TraceDB      *string `json:"trace_db,omitempty"`
	TraceEnabled *bool   `json:"trace_enabled,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrInt64(v int64) *int64    { return &v }
func ptrBool(v bool) *bool       { return &v }

// EmptyDeviceConfig returns a DeviceConfig with all fields set to nil,
// meaning every Get* method returns its default.
func EmptyDeviceConfig() *DeviceConfig {
	return &DeviceConfig{}
}

// LoadDeviceConfig loads a DeviceConfig from a JSON file. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadDeviceConfig(path string) (*DeviceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDeviceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid. It validates
// shape only (known enum values, positive numbers); whether the wiring is
// supported by the sensor is the device's attach-time check.
func (c *DeviceConfig) Validate() error {
	if c.Bus != nil {
		if *c.Bus != BusSerial && *c.Bus != BusSim {
			return fmt.Errorf("bus must be %q or %q, got %q", BusSerial, BusSim, *c.Bus)
		}
	}

	if c.SerialBaud != nil && *c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
	}

	if c.ReadTimeoutMS != nil && *c.ReadTimeoutMS <= 0 {
		return fmt.Errorf("read_timeout_ms must be positive, got %d", *c.ReadTimeoutMS)
	}

	if c.Lanes != nil && *c.Lanes <= 0 {
		return fmt.Errorf("lanes must be positive, got %d", *c.Lanes)
	}

	for _, f := range c.LinkFreqsHz {
		if f <= 0 {
			return fmt.Errorf("link_freqs_hz entries must be positive, got %d", f)
		}
	}

	if c.XClkFreqHz != nil && *c.XClkFreqHz <= 0 {
		return fmt.Errorf("xclk_freq_hz must be positive, got %d", *c.XClkFreqHz)
	}

	if c.ChipIDPolicy != nil {
		if *c.ChipIDPolicy != ChipIDStrict && *c.ChipIDPolicy != ChipIDLenient {
			return fmt.Errorf("chip_id_policy must be %q or %q, got %q",
				ChipIDStrict, ChipIDLenient, *c.ChipIDPolicy)
		}
	}

	return nil
}

// GetBus returns the bus kind or the default ("serial").
func (c *DeviceConfig) GetBus() string {
	if c.Bus == nil {
		return BusSerial
	}
	return *c.Bus
}

// GetSerialPort returns the serial port path or the default.
func (c *DeviceConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyACM0"
	}
	return *c.SerialPort
}

// GetSerialBaud returns the baud rate or the default.
func (c *DeviceConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200
	}
	return *c.SerialBaud
}

// GetReadTimeout returns the per-command reply deadline or the default.
func (c *DeviceConfig) GetReadTimeout() time.Duration {
	if c.ReadTimeoutMS == nil {
		return 500 * time.Millisecond
	}
	return time.Duration(*c.ReadTimeoutMS) * time.Millisecond
}

// GetLanes returns the CSI2 lane count or the default (2).
func (c *DeviceConfig) GetLanes() int {
	if c.Lanes == nil {
		return 2
	}
	return *c.Lanes
}

// GetLinkFreqsHz returns the configured link frequencies or the default
// single supported frequency.
func (c *DeviceConfig) GetLinkFreqsHz() []int64 {
	if len(c.LinkFreqsHz) == 0 {
		return []int64{450000000}
	}
	return c.LinkFreqsHz
}

// GetXClkFreqHz returns the external clock frequency or the default (24MHz).
func (c *DeviceConfig) GetXClkFreqHz() int64 {
	if c.XClkFreqHz == nil {
		return 24000000
	}
	return *c.XClkFreqHz
}

// GetChipIDPolicy returns the identity check policy or the default ("strict").
func (c *DeviceConfig) GetChipIDPolicy() string {
	if c.ChipIDPolicy == nil {
		return ChipIDStrict
	}
	return *c.ChipIDPolicy
}

// GetTraceDB returns the trace database path or the default.
func (c *DeviceConfig) GetTraceDB() string {
	if c.TraceDB == nil {
		return "imx258_trace.db"
	}
	return *c.TraceDB
}

// GetTraceEnabled returns whether register tracing is on (default true).
func (c *DeviceConfig) GetTraceEnabled() bool {
	if c.TraceEnabled == nil {
		return true
	}
	return *c.TraceEnabled
}
