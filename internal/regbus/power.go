package regbus

import (
	"context"
	"sync"
)

// PowerController sequences the sensor supply rails and external clock.
// Implementations must be idempotent: enabling an already-on supply or
// disabling an already-off one is a no-op.
type PowerController interface {
	// PowerOn enables the supplies and the external clock. The sensor
	// needs a settle delay after this returns before it accepts register
	// traffic; the caller owns that wait.
	PowerOn(ctx context.Context) error

	// PowerOff disables the supplies and the external clock.
	PowerOff()
}

// NopPower is a PowerController for rigs where the sensor is permanently
// powered, which is the usual case for the serial bridge and the simulator.
type NopPower struct{}

func (NopPower) PowerOn(context.Context) error { return nil }
func (NopPower) PowerOff()                     {}

// FakePower counts power transitions and can fail PowerOn, for tests.
type FakePower struct {
	mu sync.Mutex

	// OnError is returned by the next PowerOn call, then cleared.
	OnError error

	on       bool
	onCalls  int
	offCalls int
}

func (p *FakePower) PowerOn(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCalls++
	if err := p.OnError; err != nil {
		p.OnError = nil
		return err
	}
	p.on = true
	return nil
}

func (p *FakePower) PowerOff() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offCalls++
	p.on = false
}

// On reports whether the fake supply is currently enabled.
func (p *FakePower) On() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

// OnCalls returns the number of PowerOn calls, including failed ones.
func (p *FakePower) OnCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onCalls
}

// OffCalls returns the number of PowerOff calls.
func (p *FakePower) OffCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offCalls
}
