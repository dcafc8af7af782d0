package audio

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"

	"github.com/lixenwraith/clicktrack/constant"
	"github.com/lixenwraith/clicktrack/status"
)

// BufferSource is the read side of the sample cache
type BufferSource interface {
	Get(id string) (*beep.Buffer, bool)
}

// ToneFrequency returns the click pitch for a beat: accent on the bar start,
// quarter notes in the middle register, sixteenths low. Any integer is accepted.
func ToneFrequency(beat int) float64 {
	pos := beat % constant.GridSize
	if pos < 0 {
		pos += constant.GridSize
	}
	switch {
	case pos == 0:
		return constant.AccentFrequency
	case pos%constant.StepsPerBeat == 0:
		return constant.QuarterFrequency
	default:
		return constant.SixteenthFrequency
	}
}

// Selector decides what one scheduled beat plays and hands it to the device
type Selector struct {
	store        SourceStore
	buffers      BufferSource
	device       Device
	toneDuration float64
	logger       *log.Logger

	statTones   *atomic.Int64
	statSamples *atomic.Int64
	statMissing *atomic.Int64
}

// NewSelector creates a selector; a non-positive toneDuration uses the default
// Counters are taken from reg, which may be nil
func NewSelector(store SourceStore, buffers BufferSource, device Device, toneDuration time.Duration, reg *status.Registry) *Selector {
	if toneDuration <= 0 {
		toneDuration = constant.ToneDuration
	}
	if reg == nil {
		reg = status.NewRegistry()
	}
	return &Selector{
		store:        store,
		buffers:      buffers,
		device:       device,
		toneDuration: toneDuration.Seconds(),
		logger:       log.Default(),
		statTones:    reg.Counter(MetricTones),
		statSamples:  reg.Counter(MetricSamples),
		statMissing:  reg.Counter(MetricSkipMissing),
	}
}

// SetLogger replaces the warning sink
func (s *Selector) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Schedule issues at most one start instruction for beat at device time at
// A sample that is not cached yet is skipped with a warning; played reports whether a voice was issued
func (s *Selector) Schedule(beat int, at float64) (played bool, err error) {
	src := s.store.Source()

	id, isSample := src.SampleID()
	if !isSample {
		v := Voice{
			Frequency: ToneFrequency(beat),
			Start:     at,
			Stop:      at + s.toneDuration,
		}
		if err := s.device.Play(v); err != nil {
			return false, err
		}
		s.statTones.Add(1)
		return true, nil
	}

	buf, ok := s.buffers.Get(id)
	if !ok {
		s.statMissing.Add(1)
		s.logger.Printf("[audio] warn: sample %q not loaded, skipping beat %d", id, beat)
		return false, nil
	}

	if err := s.device.Play(Voice{Buffer: buf, Start: at}); err != nil {
		return false, err
	}
	s.statSamples.Add(1)
	return true, nil
}
