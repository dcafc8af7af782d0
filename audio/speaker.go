package audio

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
	"github.com/pkg/errors"

	"github.com/lixenwraith/clicktrack/constant"
)

var errDeviceClosed = errors.New("device closed")

// SpeakerDevice renders voices through the system speaker
// The speaker is opened on the first Prime; until then voices queue silently
type SpeakerDevice struct {
	rate     beep.SampleRate
	bufDur   time.Duration
	timeline *timeline

	mu    sync.Mutex
	state atomic.Int32
}

// NewSpeakerDevice creates a suspended device rendering at cfg.SampleRate
func NewSpeakerDevice(cfg *Config) *SpeakerDevice {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = constant.AudioSampleRate
	}
	bufDur := cfg.BufferDuration
	if bufDur <= 0 {
		bufDur = constant.SpeakerBufferDuration
	}
	d := &SpeakerDevice{
		rate:     beep.SampleRate(sr),
		bufDur:   bufDur,
		timeline: newTimeline(),
	}
	d.state.Store(int32(DeviceSuspended))
	return d
}

// Now implements Device
func (d *SpeakerDevice) Now() float64 {
	return float64(d.timeline.position()) / float64(d.rate)
}

// State implements Device
func (d *SpeakerDevice) State() DeviceState {
	return DeviceState(d.state.Load())
}

// OutputLatency implements Device; the speaker buffer length once running
func (d *SpeakerDevice) OutputLatency() float64 {
	if d.State() != DeviceRunning {
		return 0
	}
	return d.bufDur.Seconds()
}

// SampleRate implements Device
func (d *SpeakerDevice) SampleRate() beep.SampleRate {
	return d.rate
}

// Prime opens the speaker if needed and renders frames of silence at rate
func (d *SpeakerDevice) Prime(rate beep.SampleRate, frames int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.State() {
	case DeviceClosed:
		return errDeviceClosed
	case DeviceSuspended:
		if err := speaker.Init(d.rate, d.rate.N(d.bufDur)); err != nil {
			return errors.Wrap(err, "speaker init")
		}
		speaker.Play(d.timeline)
		d.state.Store(int32(DeviceRunning))
	}

	if frames < 1 {
		frames = 1
	}
	silent := beep.NewBuffer(beep.Format{SampleRate: rate, NumChannels: 1, Precision: 2})
	silent.Append(beep.Silence(frames))

	var s beep.Streamer = silent.Streamer(0, silent.Len())
	if rate != d.rate {
		s = beep.Resample(constant.ResampleQuality, rate, d.rate, s)
	}
	d.timeline.schedule(d.timeline.position(), s)
	return nil
}

// Play implements Device
func (d *SpeakerDevice) Play(v Voice) error {
	if d.State() == DeviceClosed {
		return errDeviceClosed
	}

	start := d.offset(v.Start)
	if !v.IsTone() {
		d.timeline.schedule(start, v.Buffer.Streamer(0, v.Buffer.Len()))
		return nil
	}

	length := d.offset(v.Stop) - start
	if length <= 0 {
		return errors.Errorf("tone stop %.4f not after start %.4f", v.Stop, v.Start)
	}
	sine, err := generators.SineTone(d.rate, v.Frequency)
	if err != nil {
		return errors.Wrapf(err, "tone %.1f Hz", v.Frequency)
	}
	d.timeline.schedule(start, beep.Take(int(length), sine))
	return nil
}

// Close stops rendering; the speaker itself stays initialized for the process
func (d *SpeakerDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.State()
	d.state.Store(int32(DeviceClosed))
	d.timeline.reset()
	if prev == DeviceRunning {
		speaker.Clear()
	}
	return nil
}

// offset converts device seconds to a sample position
func (d *SpeakerDevice) offset(seconds float64) int64 {
	return int64(math.Round(seconds * float64(d.rate)))
}

// pendingVoice is a streamer waiting for its start position
type pendingVoice struct {
	start    int64
	streamer beep.Streamer
}

// timeline is the single streamer handed to the speaker
// It counts rendered samples for the device clock and starts voices on their exact sample
type timeline struct {
	mu      sync.Mutex
	mixer   beep.Mixer
	pending []pendingVoice
	pos     atomic.Int64
}

func newTimeline() *timeline {
	return &timeline{}
}

func (t *timeline) position() int64 {
	return t.pos.Load()
}

// schedule queues s at sample position start; positions already rendered start immediately
func (t *timeline) schedule(start int64, s beep.Streamer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now := t.pos.Load(); start < now {
		start = now
	}
	// Insert after any voice with the same start to keep submission order
	i := sort.Search(len(t.pending), func(i int) bool {
		return t.pending[i].start > start
	})
	t.pending = append(t.pending, pendingVoice{})
	copy(t.pending[i+1:], t.pending[i:])
	t.pending[i] = pendingVoice{start: start, streamer: s}
}

func (t *timeline) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
	t.mixer.Clear()
}

// Stream implements beep.Streamer; it never drains
func (t *timeline) Stream(samples [][2]float64) (n int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	filled := 0
	for filled < len(samples) {
		pos := t.pos.Load()
		for len(t.pending) > 0 && t.pending[0].start <= pos {
			t.mixer.Add(t.pending[0].streamer)
			t.pending = t.pending[1:]
		}

		end := len(samples)
		if len(t.pending) > 0 {
			if next := t.pending[0].start - pos; next < int64(end-filled) {
				end = filled + int(next)
			}
		}

		chunk := samples[filled:end]
		if t.mixer.Len() == 0 {
			for i := range chunk {
				chunk[i] = [2]float64{}
			}
		} else {
			t.mixer.Stream(chunk)
		}
		t.pos.Add(int64(len(chunk)))
		filled = end
	}
	return len(samples), true
}

// Err implements beep.Streamer
func (t *timeline) Err() error {
	return nil
}
