package metronome

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/clicktrack/constant"
	"github.com/lixenwraith/clicktrack/core"
	"github.com/lixenwraith/clicktrack/status"
)

// BeatSink receives scheduled beats; audio.Engine implements it
type BeatSink interface {
	Now() float64
	RealizeBeat(beat int, at float64) error
}

// StepDuration returns the length of one sixteenth note in seconds
func StepDuration(bpm int) float64 {
	return 60.0 / float64(bpm) / constant.StepsPerBeat
}

// BeatTime maps a sixteenth-note index counted from origin to device-clock seconds
func BeatTime(origin float64, beat int, bpm int) float64 {
	return origin + float64(beat)*StepDuration(bpm)
}

// ClampBPM bounds bpm to the supported tempo range
func ClampBPM(bpm int) int {
	return max(constant.MinBPM, min(bpm, constant.MaxBPM))
}

// Metronome runs a lookahead loop that hands every sixteenth note to a BeatSink
// ahead of its due time, so audio is scheduled on the device clock rather than the ticker
type Metronome struct {
	sink      BeatSink
	tick      time.Duration
	lookahead float64
	logger    *log.Logger

	bpm atomic.Int64

	// Grid position, guarded by mu
	mu         sync.Mutex
	origin     float64 // Device time of originBeat
	originBeat int
	nextBeat   int
	listener   func(beat int, at float64)

	// Lifecycle; stopChan and doneChan are swapped under mu with running
	running  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}

	statScheduled *atomic.Int64
	statErrors    *atomic.Int64
	statResyncs   *atomic.Int64
}

// New creates a stopped metronome at bpm; reg may be nil
func New(sink BeatSink, bpm int, reg *status.Registry) *Metronome {
	if reg == nil {
		reg = status.NewRegistry()
	}
	m := &Metronome{
		sink:          sink,
		tick:          constant.SchedulerTick,
		lookahead:     constant.ScheduleLookahead.Seconds(),
		logger:        log.Default(),
		statScheduled: reg.Counter("metronome.scheduled"),
		statErrors:    reg.Counter("metronome.errors"),
		statResyncs:   reg.Counter("metronome.resyncs"),
	}
	m.bpm.Store(int64(ClampBPM(bpm)))
	return m
}

// BPM returns the current tempo
func (m *Metronome) BPM() int {
	return int(m.bpm.Load())
}

// SetBPM changes tempo from the next unscheduled beat and returns the clamped value
func (m *Metronome) SetBPM(bpm int) int {
	bpm = ClampBPM(bpm)

	m.mu.Lock()
	old := int(m.bpm.Load())
	if old != bpm {
		// Rebase so beats already handed out keep their times
		m.origin = BeatTime(m.origin, m.nextBeat-m.originBeat, old)
		m.originBeat = m.nextBeat
		m.bpm.Store(int64(bpm))
	}
	m.mu.Unlock()
	return bpm
}

// SetListener registers fn to be called after each beat is scheduled
// fn runs on the scheduler goroutine and must not call back into the metronome
func (m *Metronome) SetListener(fn func(beat int, at float64)) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

// Running reports whether the loop is active
func (m *Metronome) Running() bool {
	return m.running.Load()
}

// Start begins scheduling from beat 0 one lookahead window from now
func (m *Metronome) Start() {
	m.mu.Lock()
	if !m.running.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return
	}
	m.origin = m.sink.Now() + m.lookahead
	m.originBeat = 0
	m.nextBeat = 0
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stopChan = stop
	m.doneChan = done
	m.mu.Unlock()

	core.Go(func() { m.loop(stop, done) })
}

// Stop halts the loop; beats already handed to the sink still play
func (m *Metronome) Stop() {
	m.mu.Lock()
	if !m.running.CompareAndSwap(true, false) {
		m.mu.Unlock()
		return
	}
	stop, done := m.stopChan, m.doneChan
	m.mu.Unlock()

	close(stop)
	<-done
}

func (m *Metronome) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	m.schedule(m.sink.Now())
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.schedule(m.sink.Now())
		}
	}
}

// schedule hands out every beat due before now+lookahead
func (m *Metronome) schedule(now float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bpm := int(m.bpm.Load())
	at := BeatTime(m.origin, m.nextBeat-m.originBeat, bpm)

	// Fell behind by more than a window (device stalled): restart the grid at now
	// Exactly one window behind is still scheduled in place
	if at < now-m.lookahead {
		m.statResyncs.Add(1)
		m.origin = now
		m.originBeat = m.nextBeat
		at = now
	}

	for at < now+m.lookahead {
		beat := m.nextBeat % constant.GridSize
		if err := m.sink.RealizeBeat(beat, at); err != nil {
			m.statErrors.Add(1)
			m.logger.Printf("[metronome] beat %d: %v", beat, err)
		}
		m.statScheduled.Add(1)
		if m.listener != nil {
			m.listener(beat, at)
		}
		m.nextBeat++
		at = BeatTime(m.origin, m.nextBeat-m.originBeat, bpm)
	}
}
