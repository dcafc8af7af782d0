package audio

import (
	"strings"
	"sync/atomic"
)

// toneName is the textual form of the synthesized source
const toneName = "tone"

// SoundSource selects what a scheduled beat plays
// The zero value is Tone; Sample(id) selects a cataloged sample
type SoundSource struct {
	sample string
}

// Tone is the synthesized oscillator source
var Tone = SoundSource{}

// Sample selects the sample with the given identifier, an empty id selects Tone
func Sample(id string) SoundSource {
	return SoundSource{sample: id}
}

// ParseSource reads "tone" (or "beep", or empty) as Tone and anything else as a sample id
func ParseSource(s string) SoundSource {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", toneName, "beep":
		return Tone
	}
	return Sample(s)
}

// IsTone reports whether the source is the synthesized tone
func (s SoundSource) IsTone() bool {
	return s.sample == ""
}

// SampleID returns the sample identifier, ok is false for Tone
func (s SoundSource) SampleID() (id string, ok bool) {
	return s.sample, s.sample != ""
}

func (s SoundSource) String() string {
	if s.IsTone() {
		return toneName
	}
	return "sample:" + s.sample
}

// SourceStore is the configuration handle written by the UI and read per beat
type SourceStore interface {
	Source() SoundSource
	SetSource(SoundSource)
}

// Selection is a lock-free SourceStore
type Selection struct {
	current atomic.Pointer[SoundSource]
}

// NewSelection creates a store holding initial
func NewSelection(initial SoundSource) *Selection {
	s := &Selection{}
	s.SetSource(initial)
	return s
}

// Source returns the active source, Tone if never set
func (s *Selection) Source() SoundSource {
	if p := s.current.Load(); p != nil {
		return *p
	}
	return Tone
}

// SetSource replaces the active source
func (s *Selection) SetSource(src SoundSource) {
	s.current.Store(&src)
}
