package main

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"

	"github.com/lixenwraith/clicktrack/audio"
	"github.com/lixenwraith/clicktrack/catalog"
	"github.com/lixenwraith/clicktrack/constant"
	"github.com/lixenwraith/clicktrack/metronome"
	"github.com/lixenwraith/clicktrack/status"
)

const (
	redrawInterval = 50 * time.Millisecond
	bpmStep        = 5
)

var (
	styleDefault = tcell.StyleDefault
	styleTitle   = tcell.StyleDefault.Foreground(tcell.ColorAqua).Bold(true)
	styleDim     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleAccent  = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorYellow)
	styleStep    = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorGreen)
	styleError   = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorRed).Bold(true)
)

// app is the terminal front end; it is the only writer of the sound source
type app struct {
	screen    tcell.Screen
	engine    *audio.Engine // nil when audio is disabled
	metronome *metronome.Metronome
	store     audio.SourceStore
	catalog   *catalog.Catalog
	registry  *status.Registry

	beat      atomic.Int64
	sampleIdx int
	lastErr   error
}

func newApp(screen tcell.Screen, eng *audio.Engine, m *metronome.Metronome, store audio.SourceStore, cat *catalog.Catalog, reg *status.Registry) *app {
	a := &app{
		screen:    screen,
		engine:    eng,
		metronome: m,
		store:     store,
		catalog:   cat,
		registry:  reg,
		sampleIdx: -1,
	}
	if eng != nil {
		a.catalog = eng.Catalog()
	}
	a.beat.Store(-1)
	m.SetListener(func(beat int, _ float64) {
		a.beat.Store(int64(beat))
	})
	return a
}

func (a *app) run(ctx context.Context) {
	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	go a.screen.ChannelEvents(events, quit)
	defer close(quit)

	var loadErrs <-chan error
	if a.engine != nil {
		loadErrs = a.engine.Errors()
	}

	ticker := time.NewTicker(redrawInterval)
	defer ticker.Stop()

	a.draw()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !a.handle(ctx, ev) {
				return
			}
		case err := <-loadErrs:
			a.lastErr = err
		case <-ticker.C:
		}
		a.draw()
	}
}

// handle applies one input event, returning false to quit
func (a *app) handle(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		a.screen.Sync()
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyRune:
			return a.handleRune(ctx, ev.Rune())
		}
	}
	return true
}

func (a *app) handleRune(ctx context.Context, r rune) bool {
	switch r {
	case 'q':
		return false
	case ' ':
		a.toggle()
	case 't':
		a.store.SetSource(audio.Tone)
	case 'n':
		a.nextSample()
	case '+', '=':
		a.metronome.SetBPM(a.metronome.BPM() + bpmStep)
	case '-', '_':
		a.metronome.SetBPM(a.metronome.BPM() - bpmStep)
	case 'p':
		if a.engine != nil {
			a.engine.Preload(ctx)
		}
	case 'c':
		a.lastErr = nil
	}
	return true
}

// toggle is the user gesture: it unlocks the device before the first start
func (a *app) toggle() {
	if a.metronome.Running() {
		a.metronome.Stop()
		a.beat.Store(-1)
		return
	}
	if a.engine != nil {
		if err := a.engine.Unlock(); err != nil {
			a.lastErr = err
			log.Printf("[clicktrack] %v", err)
			return
		}
	}
	a.metronome.Start()
}

// nextSample cycles through the catalog, wrapping back to the tone
func (a *app) nextSample() {
	ids := a.catalog.IDs()
	a.sampleIdx++
	if a.sampleIdx >= len(ids) {
		a.sampleIdx = -1
		a.store.SetSource(audio.Tone)
		return
	}
	a.store.SetSource(audio.Sample(ids[a.sampleIdx]))
}

func (a *app) draw() {
	s := a.screen
	s.Clear()
	w, h := s.Size()

	y := 0
	drawText(s, 1, y, styleTitle, "clicktrack")
	y += 2

	// Beat grid
	current := int(a.beat.Load())
	for i := 0; i < constant.GridSize; i++ {
		style := styleDim
		switch {
		case i == current && i == 0:
			style = styleAccent
		case i == current:
			style = styleStep
		}
		mark := "."
		if i%constant.StepsPerBeat == 0 {
			mark = "|"
		}
		drawText(s, 1+i*3, y, style, " "+mark+" ")
	}
	y += 2

	transport := "stopped"
	if a.metronome.Running() {
		transport = "playing"
	}
	drawText(s, 1, y, styleDefault, fmt.Sprintf("BPM: %d   Source: %s   Transport: %s",
		a.metronome.BPM(), a.store.Source(), transport))
	y++

	drawText(s, 1, y, styleDefault, a.audioLine())
	y += 2

	for _, line := range a.registry.Snapshot() {
		if y >= h-3 {
			break
		}
		drawText(s, 1, y, styleDim, line)
		y++
	}

	if a.lastErr != nil {
		banner := " " + errorBanner(a.lastErr) + "  (c to dismiss) "
		fill := w - 2 - len(banner)
		for i := 0; i < fill; i++ {
			banner += " "
		}
		drawText(s, 1, h-3, styleError, banner)
	}

	drawText(s, 1, h-1, styleDim, "space start/stop  t tone  n next sample  +/- bpm  p preload  q quit")
	s.Show()
}

func (a *app) audioLine() string {
	if a.engine == nil {
		return "Audio: disabled"
	}

	lock := "locked (press space)"
	if a.engine.Unlocked() {
		lock = "unlocked"
	}

	latency := "unknown"
	if l := a.engine.BaseLatency(); l > 0 {
		latency = fmt.Sprintf("%.1f ms", l*1000)
	}

	return fmt.Sprintf("Audio: %s   Base latency: %s   Cached: %d/%d",
		lock, latency, a.engine.Cache().Len(), a.catalog.Len())
}

// errorBanner names the failure class ahead of the detail
func errorBanner(err error) string {
	switch {
	case errors.Is(err, audio.ErrUnknownIdentifier):
		return "Unknown sample: " + err.Error()
	case errors.Is(err, audio.ErrTransport):
		return "Download failed: " + err.Error()
	case errors.Is(err, audio.ErrDecode):
		return "Decode failed: " + err.Error()
	case errors.Is(err, audio.ErrUnlock):
		return "Audio unavailable: " + err.Error()
	default:
		return err.Error()
	}
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
