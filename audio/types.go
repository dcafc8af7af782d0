package audio

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors
var (
	ErrUnknownIdentifier = errors.New("unknown sample identifier")
	ErrTransport         = errors.New("sample transport failed")
	ErrDecode            = errors.New("sample decode failed")
	ErrUnlock            = errors.New("audio device refused unlock")
	ErrBatchCancelled    = errors.New("load batch cancelled")
	ErrEngineClosed      = errors.New("audio engine closed")
)

// LoadError reports the failure of one identifier within a load batch
// Kind is one of ErrUnknownIdentifier, ErrTransport or ErrDecode
type LoadError struct {
	ID       string
	Location string
	Kind     error
	Err      error
}

func (e *LoadError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("sample %q: %v", e.ID, e.Kind)
	case e.Location == "":
		return fmt.Sprintf("sample %q: %v: %v", e.ID, e.Kind, e.Err)
	default:
		return fmt.Sprintf("sample %q (%s): %v: %v", e.ID, e.Location, e.Kind, e.Err)
	}
}

// Unwrap exposes both the failure kind and the underlying cause to errors.Is
func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// DeviceState mirrors the lifecycle of the output device
type DeviceState int

const (
	DeviceSuspended DeviceState = iota // Not yet primed by a user gesture
	DeviceRunning                      // Rendering, clock advancing
	DeviceClosed                       // Released
)

func (s DeviceState) String() string {
	switch s {
	case DeviceSuspended:
		return "suspended"
	case DeviceRunning:
		return "running"
	case DeviceClosed:
		return "closed"
	default:
		return fmt.Sprintf("DeviceState(%d)", int(s))
	}
}

// Metric keys recorded in the engine registry
const (
	MetricBeats          = "audio.beats"
	MetricTones          = "audio.voices.tone"
	MetricSamples        = "audio.voices.sample"
	MetricSkipMissing    = "audio.skip.missing"
	MetricSkipLocked     = "audio.skip.locked"
	MetricPlayErrors     = "audio.play.errors"
	MetricBatchStarted   = "loader.batches.started"
	MetricBatchCompleted = "loader.batches.completed"
	MetricBatchFailed    = "loader.batches.failed"
	MetricLoadErrors     = "loader.errors"
	MetricErrorsDropped  = "loader.errors.dropped"
	MetricCached         = "cache.buffers"
	MetricLatency        = "device.latency"
)
