package audio

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/lixenwraith/clicktrack/catalog"
	"github.com/lixenwraith/clicktrack/constant"
	"github.com/lixenwraith/clicktrack/core"
	"github.com/lixenwraith/clicktrack/status"
)

// Engine is the facade the scheduler talks to
// It owns the unlock gate, sample cache and playback selector for one device
type Engine struct {
	config   *Config
	device   Device
	store    SourceStore
	gate     *UnlockGate
	catalog  *catalog.Catalog
	loader   *Loader
	cache    *SampleCache
	selector *Selector
	registry *status.Registry
	logger   *log.Logger

	// Out-of-band load failures
	errChan chan error

	baseLatency status.AtomicFloat

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	statBeats          *atomic.Int64
	statLocked         *atomic.Int64
	statPlayErrors     *atomic.Int64
	statBatchStarted   *atomic.Int64
	statBatchCompleted *atomic.Int64
	statBatchFailed    *atomic.Int64
	statLoadErrors     *atomic.Int64
	statErrorsDropped  *atomic.Int64
	gaugeCached        *status.AtomicFloat
	gaugeLatency       *status.AtomicFloat
}

type engineOptions struct {
	catalog  *catalog.Catalog
	fetcher  Fetcher
	decoder  Decoder
	store    SourceStore
	logger   *log.Logger
	registry *status.Registry
}

// Option customizes engine collaborators
type Option func(*engineOptions)

// WithCatalog replaces the default catalog; config overrides are still merged on top
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *engineOptions) { o.catalog = c }
}

// WithFetcher replaces the config-driven fetcher
func WithFetcher(f Fetcher) Option {
	return func(o *engineOptions) { o.fetcher = f }
}

// WithDecoder replaces the WAV decoder
func WithDecoder(d Decoder) Option {
	return func(o *engineOptions) { o.decoder = d }
}

// WithStore shares an externally owned source selection
func WithStore(s SourceStore) Option {
	return func(o *engineOptions) { o.store = s }
}

// WithLogger sets the logger for warnings and load failures
func WithLogger(l *log.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithRegistry records metrics into an existing registry
func WithRegistry(r *status.Registry) Option {
	return func(o *engineOptions) { o.registry = r }
}

// NewEngine wires an engine around device
func NewEngine(cfg *Config, device Device, opts ...Option) (*Engine, error) {
	if device == nil {
		return nil, errors.New("audio engine requires a device")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	o := engineOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.catalog == nil {
		o.catalog = catalog.Default()
	}
	if len(cfg.CatalogOverrides) > 0 {
		merged, err := o.catalog.Merge(cfg.CatalogOverrides)
		if err != nil {
			return nil, errors.Wrap(err, "catalog overrides")
		}
		o.catalog = merged
	}
	if o.fetcher == nil {
		f, err := NewFetcher(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "fetcher")
		}
		o.fetcher = f
	}
	if o.decoder == nil {
		o.decoder = NewWAVDecoder(device.SampleRate())
	}
	if o.store == nil {
		o.store = NewSelection(Tone)
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	if o.registry == nil {
		o.registry = status.NewRegistry()
	}

	queue := cfg.ErrorQueueSize
	if queue <= 0 {
		queue = constant.ErrorQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg := o.registry

	e := &Engine{
		config:   cfg,
		device:   device,
		store:    o.store,
		gate:     NewUnlockGate(device),
		catalog:  o.catalog,
		registry: reg,
		logger:   o.logger,
		errChan:  make(chan error, queue),
		ctx:      ctx,
		cancel:   cancel,

		statBeats:          reg.Counter(MetricBeats),
		statLocked:         reg.Counter(MetricSkipLocked),
		statPlayErrors:     reg.Counter(MetricPlayErrors),
		statBatchStarted:   reg.Counter(MetricBatchStarted),
		statBatchCompleted: reg.Counter(MetricBatchCompleted),
		statBatchFailed:    reg.Counter(MetricBatchFailed),
		statLoadErrors:     reg.Counter(MetricLoadErrors),
		statErrorsDropped:  reg.Counter(MetricErrorsDropped),
		gaugeCached:        reg.Gauge(MetricCached),
		gaugeLatency:       reg.Gauge(MetricLatency),
	}

	e.loader = NewLoader(o.catalog, o.fetcher, o.decoder, cfg, e.report)
	e.loader.logger = o.logger
	e.cache = NewSampleCache(e.loader, cfg.RetryAfter)
	e.selector = NewSelector(e.store, e.cache, device, cfg.ToneDuration, reg)
	e.selector.SetLogger(o.logger)

	return e, nil
}

// Source returns the currently selected sound source
func (e *Engine) Source() SoundSource {
	return e.store.Source()
}

// SetSource selects what subsequent beats play
// Sample loading is deferred to the next RealizeBeat
func (e *Engine) SetSource(src SoundSource) {
	e.store.SetSource(src)
}

// Unlock primes the device; must be called from a user gesture
func (e *Engine) Unlock() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.gate.Unlock()
}

// Unlocked reports whether the device has been primed
func (e *Engine) Unlocked() bool {
	return e.gate.Unlocked()
}

// BaseLatency returns the device output latency in seconds
// Returns 0 (unknown) until the device is running and reports a figure;
// the first reported value is cached for the engine lifetime
func (e *Engine) BaseLatency() float64 {
	if v := e.baseLatency.Get(); v > 0 {
		return v
	}
	if e.device.State() != DeviceRunning {
		return 0
	}
	reported := e.device.OutputLatency()
	if reported <= 0 {
		return 0
	}
	v := e.baseLatency.SetOnce(reported)
	e.gaugeLatency.Set(v)
	return v
}

// RealizeBeat refreshes the cache for the current source and schedules beat at device time at
// Never blocks: a sample still loading is skipped, as is every beat while the gate is locked
// The cache refresh runs even while locked so loading starts before the first gesture
func (e *Engine) RealizeBeat(beat int, at float64) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	if b := e.cache.MaybeLoad(e.ctx, e.store.Source()); b != nil {
		e.track(b)
	}

	if !e.gate.Unlocked() {
		e.statLocked.Add(1)
		return nil
	}
	e.statBeats.Add(1)

	if _, err := e.selector.Schedule(beat, at); err != nil {
		e.statPlayErrors.Add(1)
		return errors.Wrapf(err, "beat %d", beat)
	}
	return nil
}

// Preload loads ids, or the whole catalog when none are given
// Returns nil if everything requested is cached or already loading
func (e *Engine) Preload(ctx context.Context, ids ...string) *Batch {
	if e.closed.Load() {
		return nil
	}
	if len(ids) == 0 {
		ids = e.catalog.IDs()
	}
	b := e.cache.Preload(ctx, ids...)
	if b != nil {
		e.track(b)
	}
	return b
}

// Now returns the device clock in seconds
func (e *Engine) Now() float64 {
	return e.device.Now()
}

// Errors returns the out-of-band channel carrying load failures
func (e *Engine) Errors() <-chan error {
	return e.errChan
}

// Catalog returns the resolved sample catalog
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Cache returns the sample cache
func (e *Engine) Cache() *SampleCache {
	return e.cache
}

// Registry returns the metrics registry
func (e *Engine) Registry() *status.Registry {
	return e.registry
}

// Stats renders the metrics snapshot
func (e *Engine) Stats() []string {
	return e.registry.Snapshot()
}

// Close cancels in-flight loads and releases the device
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.cancel()
	return e.device.Close()
}

// report delivers a load failure without blocking the loader
func (e *Engine) report(err error) {
	e.statLoadErrors.Add(1)
	select {
	case e.errChan <- err:
	default:
		e.statErrorsDropped.Add(1)
	}
}

// track records the outcome of a batch once it ends
func (e *Engine) track(b *Batch) {
	e.statBatchStarted.Add(1)
	core.Go(func() {
		<-b.Done()
		if b.Err() != nil {
			e.statBatchFailed.Add(1)
			return
		}
		e.statBatchCompleted.Add(1)
		e.gaugeCached.Set(float64(e.cache.Len()))
	})
}
