package audio

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/lixenwraith/clicktrack/catalog"
	"github.com/lixenwraith/clicktrack/service"
	"github.com/lixenwraith/clicktrack/status"
)

// EngineService wraps Engine as a Service
// Handles graceful degradation when no output device can be created
type EngineService struct {
	config   *Config
	registry *status.Registry
	catalog  *catalog.Catalog
	store    SourceStore

	// newDevice is replaceable so the lifecycle can run without a speaker
	newDevice func(*Config) (Device, error)

	engine   *Engine
	disabled atomic.Bool
	running  atomic.Bool
}

var _ service.Service = (*EngineService)(nil)

// NewService creates a new engine service recording into reg
func NewService(reg *status.Registry, store SourceStore) *EngineService {
	return &EngineService{
		registry: reg,
		store:    store,
		newDevice: func(cfg *Config) (Device, error) {
			return NewSpeakerDevice(cfg), nil
		},
	}
}

// Name implements Service
func (s *EngineService) Name() string {
	return "audio"
}

// Dependencies implements Service
func (s *EngineService) Dependencies() []string {
	return nil
}

// Init implements Service
// args[0]: *Config - engine configuration (default LoadConfig())
// args[1]: *catalog.Catalog - sample catalog (default catalog.Default())
// Sets the disabled flag when the device or engine cannot be built (no error returned)
func (s *EngineService) Init(args ...any) error {
	cfg := LoadConfig()
	if len(args) > 0 {
		if c, ok := args[0].(*Config); ok && c != nil {
			cfg = c
		}
	}
	if len(args) > 1 {
		if c, ok := args[1].(*catalog.Catalog); ok && c != nil {
			s.catalog = c
		}
	}
	s.config = cfg

	device, err := s.newDevice(cfg)
	if err != nil {
		log.Printf("[audio] device unavailable, running silent: %v", err)
		s.disabled.Store(true)
		return nil
	}

	opts := []Option{WithRegistry(s.registry)}
	if s.catalog != nil {
		opts = append(opts, WithCatalog(s.catalog))
	}
	if s.store != nil {
		opts = append(opts, WithStore(s.store))
	}

	eng, err := NewEngine(cfg, device, opts...)
	if err != nil {
		log.Printf("[audio] engine init failed, running silent: %v", err)
		device.Close()
		s.disabled.Store(true)
		return nil
	}
	s.engine = eng
	return nil
}

// Start implements Service
// Preloads the whole catalog when configured to
func (s *EngineService) Start() error {
	if s.disabled.Load() || s.engine == nil {
		return nil
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	if s.config.PreloadAll {
		s.engine.Preload(context.Background())
	}
	return nil
}

// Stop implements Service
func (s *EngineService) Stop() error {
	s.running.Store(false)
	if s.engine != nil {
		return s.engine.Close()
	}
	return nil
}

// IsDisabled returns true if audio is unavailable
func (s *EngineService) IsDisabled() bool {
	return s.disabled.Load()
}

// Engine returns the underlying Engine (nil if disabled)
func (s *EngineService) Engine() *Engine {
	if s.disabled.Load() {
		return nil
	}
	return s.engine
}

// Now returns the engine clock, 0 while disabled
func (s *EngineService) Now() float64 {
	if e := s.Engine(); e != nil {
		return e.Now()
	}
	return 0
}

// RealizeBeat forwards to the engine; beats are dropped while disabled
func (s *EngineService) RealizeBeat(beat int, at float64) error {
	if e := s.Engine(); e != nil {
		return e.RealizeBeat(beat, at)
	}
	return nil
}
