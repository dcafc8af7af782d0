package constant

import "time"

// Audio Hardware Settings
const (
	AudioSampleRate = 44100

	// UnlockSampleRate and UnlockFrames describe the silent buffer rendered on unlock
	UnlockSampleRate = 22050
	UnlockFrames     = 1

	// SpeakerBufferDuration is the speaker buffer length, reported as output latency
	SpeakerBufferDuration = 50 * time.Millisecond

	// ResampleQuality is passed to beep.Resample (1-6, 4 is a good tradeoff)
	ResampleQuality = 4

	// DecodeChunkFrames is the number of frames appended per decode step
	DecodeChunkFrames = 4096
)

// Beat Grid
const (
	GridSize     = 16 // Sixteenth notes per bar
	StepsPerBeat = 4  // Sixteenth notes per quarter note
)

// Tone Frequencies
const (
	AccentFrequency    = 880.0 // Beat 0 of the bar
	QuarterFrequency   = 440.0 // Quarter-note positions
	SixteenthFrequency = 220.0 // Everything else
)

// ToneDuration bounds each synthesized click so it does not ring into the next beat
const ToneDuration = 50 * time.Millisecond

// Sample Loading
const (
	LoadTimeout       = 10 * time.Second
	RetryAfter        = 5 * time.Second
	MaxSampleBytes    = 16 << 20
	FetchRatePerSec   = 8.0
	FetchBurst        = 4
	LoadConcurrency   = 8
	ErrorQueueSize    = 16
	HTTPClientTimeout = 30 * time.Second
)

// Metronome
const (
	DefaultBPM        = 120
	MinBPM            = 30
	MaxBPM            = 300
	SchedulerTick     = 25 * time.Millisecond
	ScheduleLookahead = 100 * time.Millisecond
)
