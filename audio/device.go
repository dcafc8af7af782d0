package audio

import (
	"github.com/gopxl/beep"
)

// Voice is one start instruction for the output device
// Exactly one of Frequency (tone) or Buffer (sample) is set
type Voice struct {
	Frequency float64
	Buffer    *beep.Buffer
	Start     float64 // Device clock seconds
	Stop      float64 // Tone only; samples end with their buffer
}

// IsTone reports whether the voice is a synthesized tone
func (v Voice) IsTone() bool {
	return v.Buffer == nil
}

// Device is the platform output collaborator
type Device interface {
	// Now returns the device clock in seconds
	Now() float64

	// State returns the current lifecycle state
	State() DeviceState

	// OutputLatency returns the measured output delay in seconds, 0 when unknown
	OutputLatency() float64

	// SampleRate is the native rate decoded buffers are converted to
	SampleRate() beep.SampleRate

	// Prime renders frames of silence at rate, from within a user gesture
	Prime(rate beep.SampleRate, frames int) error

	// Play starts the voice at its start time
	Play(v Voice) error

	// Close releases the device
	Close() error
}
