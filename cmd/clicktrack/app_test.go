package main

import (
	"context"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"

	"github.com/lixenwraith/clicktrack/audio"
	"github.com/lixenwraith/clicktrack/catalog"
	"github.com/lixenwraith/clicktrack/metronome"
	"github.com/lixenwraith/clicktrack/status"
)

type idleSink struct{}

func (idleSink) Now() float64                   { return 0 }
func (idleSink) RealizeBeat(int, float64) error { return nil }

func newTestApp(t *testing.T) *app {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Simulation screen init failed: %v", err)
	}
	screen.SetSize(100, 30)
	t.Cleanup(screen.Fini)

	cat, err := catalog.New(map[string]string{
		"hihat": "static/sounds/hihat.wav",
		"kick":  "static/sounds/kick.wav",
	})
	if err != nil {
		t.Fatal(err)
	}
	reg := status.NewRegistry()
	m := metronome.New(idleSink{}, 120, reg)
	return newApp(screen, nil, m, audio.NewSelection(audio.Tone), cat, reg)
}

// TestNextSampleCycles verifies n walks the catalog and wraps to the tone
func TestNextSampleCycles(t *testing.T) {
	a := newTestApp(t)

	want := []audio.SoundSource{audio.Sample("hihat"), audio.Sample("kick"), audio.Tone, audio.Sample("hihat")}
	for i, w := range want {
		a.handleRune(context.Background(), 'n')
		if got := a.store.Source(); got != w {
			t.Errorf("Press %d: expected %v, got %v", i, w, got)
		}
	}

	a.handleRune(context.Background(), 't')
	if a.store.Source() != audio.Tone {
		t.Errorf("Expected t to select the tone, got %v", a.store.Source())
	}
}

// TestBPMKeys verifies tempo adjustment keys
func TestBPMKeys(t *testing.T) {
	a := newTestApp(t)

	a.handleRune(context.Background(), '+')
	a.handleRune(context.Background(), '+')
	a.handleRune(context.Background(), '-')
	if bpm := a.metronome.BPM(); bpm != 125 {
		t.Errorf("Expected 125 BPM, got %d", bpm)
	}
	if a.handleRune(context.Background(), 'q') {
		t.Error("Expected q to quit")
	}
}

// TestErrorBanner verifies failures are labeled by kind
func TestErrorBanner(t *testing.T) {
	tests := []struct {
		err    error
		prefix string
	}{
		{&audio.LoadError{ID: "cowbell", Kind: audio.ErrUnknownIdentifier}, "Unknown sample"},
		{&audio.LoadError{ID: "hihat", Kind: audio.ErrTransport, Err: errors.New("404")}, "Download failed"},
		{&audio.LoadError{ID: "hihat", Kind: audio.ErrDecode, Err: errors.New("bad header")}, "Decode failed"},
		{errors.Wrap(audio.ErrUnlock, "no device"), "Audio unavailable"},
		{errors.New("other"), "other"},
	}

	for _, tt := range tests {
		if got := errorBanner(tt.err); !strings.HasPrefix(got, tt.prefix) {
			t.Errorf("errorBanner(%v) = %q, expected prefix %q", tt.err, got, tt.prefix)
		}
	}
}

// TestDrawDisabled verifies the UI renders without an audio engine
func TestDrawDisabled(t *testing.T) {
	a := newTestApp(t)
	a.lastErr = errors.New("boom")
	a.draw()

	if line := a.audioLine(); line != "Audio: disabled" {
		t.Errorf("Expected disabled audio line, got %q", line)
	}
}
