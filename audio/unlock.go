package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep"

	"github.com/lixenwraith/clicktrack/constant"
)

// UnlockGate primes the output device exactly once, from a user gesture
type UnlockGate struct {
	device   Device
	mu       sync.Mutex
	unlocked atomic.Bool
}

// NewUnlockGate creates a locked gate for device
func NewUnlockGate(device Device) *UnlockGate {
	return &UnlockGate{device: device}
}

// Unlock renders one silent frame on the first call; later calls are no-ops
// A device refusal matches both ErrUnlock and the device error, and leaves the gate locked
func (g *UnlockGate) Unlock() error {
	if g.unlocked.Load() {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unlocked.Load() {
		return nil
	}

	if err := g.device.Prime(beep.SampleRate(constant.UnlockSampleRate), constant.UnlockFrames); err != nil {
		return fmt.Errorf("%w: %w", ErrUnlock, err)
	}
	g.unlocked.Store(true)
	return nil
}

// Unlocked reports whether Unlock has succeeded; never resets
func (g *UnlockGate) Unlocked() bool {
	return g.unlocked.Load()
}
