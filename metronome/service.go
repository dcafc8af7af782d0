package metronome

import (
	"github.com/pkg/errors"

	"github.com/lixenwraith/clicktrack/constant"
	"github.com/lixenwraith/clicktrack/service"
	"github.com/lixenwraith/clicktrack/status"
)

// Service owns the metronome for the lifetime of the process
// Playback itself is toggled by the UI; Stop always halts it
type Service struct {
	registry  *status.Registry
	metronome *Metronome
}

var _ service.Service = (*Service)(nil)

// NewService creates a metronome service recording into reg
func NewService(reg *status.Registry) *Service {
	return &Service{registry: reg}
}

// Name implements Service
func (s *Service) Name() string {
	return "metronome"
}

// Dependencies implements Service
func (s *Service) Dependencies() []string {
	return []string{"audio"}
}

// Init implements Service
// args[0]: BeatSink - required
// args[1]: int - initial BPM (default constant.DefaultBPM)
func (s *Service) Init(args ...any) error {
	if len(args) == 0 {
		return errors.New("metronome requires a beat sink")
	}
	sink, ok := args[0].(BeatSink)
	if !ok || sink == nil {
		return errors.Errorf("metronome: args[0] is %T, not a BeatSink", args[0])
	}

	bpm := constant.DefaultBPM
	if len(args) > 1 {
		if v, ok := args[1].(int); ok && v > 0 {
			bpm = v
		}
	}

	s.metronome = New(sink, bpm, s.registry)
	return nil
}

// Start implements Service
func (s *Service) Start() error {
	if s.metronome == nil {
		return errors.New("metronome not initialized")
	}
	return nil
}

// Stop implements Service
func (s *Service) Stop() error {
	if s.metronome != nil {
		s.metronome.Stop()
	}
	return nil
}

// Metronome returns the scheduler, nil before Init
func (s *Service) Metronome() *Metronome {
	return s.metronome
}
