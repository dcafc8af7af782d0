package audio

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/lixenwraith/clicktrack/catalog"
	"github.com/lixenwraith/clicktrack/status"
)

// syncBuffer is a log sink safe for concurrent writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type engineFixture struct {
	engine  *Engine
	device  *fakeDevice
	fetcher *fakeFetcher
	logs    *syncBuffer
}

func newEngineFixture(t *testing.T, cfg *Config) *engineFixture {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	f := &engineFixture{
		device: newFakeDevice(),
		fetcher: newFakeFetcher(map[string][]byte{
			"static/sounds/hihat.wav": []byte("hihat-sample"),
		}),
		logs: &syncBuffer{},
	}
	eng, err := NewEngine(cfg, f.device,
		WithFetcher(f.fetcher),
		WithDecoder(fakeDecoder{}),
		WithLogger(log.New(f.logs, "", 0)),
	)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	f.engine = eng
	return f
}

// TestNewEngineRequiresDevice verifies construction fails without a device
func TestNewEngineRequiresDevice(t *testing.T) {
	if _, err := NewEngine(nil, nil); err == nil {
		t.Error("Expected error for nil device")
	}
}

// TestEngineDefaults verifies the engine starts locked on the tone with the default catalog
func TestEngineDefaults(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine

	if e.Unlocked() {
		t.Error("Expected new engine to be locked")
	}
	if e.Source() != Tone {
		t.Errorf("Expected Tone, got %v", e.Source())
	}
	if loc, ok := e.Catalog().Lookup(catalog.DefaultSample); !ok || loc != "static/sounds/hihat.wav" {
		t.Errorf("Expected default hihat entry, got %q", loc)
	}
}

// TestEngineHihatScenario verifies the first beat skips while loading and a later beat plays the buffer
func TestEngineHihatScenario(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine
	gate := f.fetcher.hold()

	if err := e.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	e.SetSource(Sample("hihat"))

	if err := e.RealizeBeat(0, 1.0); err != nil {
		t.Fatalf("RealizeBeat(0) failed: %v", err)
	}
	if n := len(f.device.played()); n != 0 {
		t.Fatalf("Expected no sound before load completes, got %d voices", n)
	}
	if n := strings.Count(f.logs.String(), "not loaded"); n != 1 {
		t.Errorf("Expected exactly 1 warning, got %d", n)
	}

	close(gate)
	waitFor(t, "hihat to be cached", func() bool {
		_, ok := e.Cache().Get("hihat")
		return ok
	})

	if err := e.RealizeBeat(1, 1.125); err != nil {
		t.Fatalf("RealizeBeat(1) failed: %v", err)
	}
	voices := f.device.played()
	if len(voices) != 1 {
		t.Fatalf("Expected 1 voice after load, got %d", len(voices))
	}
	want, _ := e.Cache().Get("hihat")
	if voices[0].Buffer != want || voices[0].Start != 1.125 {
		t.Errorf("Expected hihat buffer at 1.125, got %+v", voices[0])
	}
	if n := f.fetcher.count("static/sounds/hihat.wav"); n != 1 {
		t.Errorf("Expected 1 fetch, got %d", n)
	}
}

// TestEngineToneAccent verifies beat 16 and beat 0 sound the same accent
func TestEngineToneAccent(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine
	e.Unlock()

	e.RealizeBeat(16, 2.0)
	e.RealizeBeat(0, 2.0)

	voices := f.device.played()
	if len(voices) != 2 {
		t.Fatalf("Expected 2 voices, got %d", len(voices))
	}
	for i, v := range voices {
		if v.Frequency != 880 {
			t.Errorf("Voice %d: expected 880 Hz, got %v", i, v.Frequency)
		}
	}
}

// TestEngineLockedSkips verifies beats before the user gesture are counted and dropped
func TestEngineLockedSkips(t *testing.T) {
	reg := status.NewRegistry()
	dev := newFakeDevice()
	e, err := NewEngine(testConfig(), dev, WithRegistry(reg), WithFetcher(newFakeFetcher(nil)), WithDecoder(fakeDecoder{}))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer e.Close()

	if err := e.RealizeBeat(0, 0.5); err != nil {
		t.Fatalf("Expected locked beat to be skipped silently, got %v", err)
	}
	if n := len(dev.played()); n != 0 {
		t.Errorf("Expected no voices while locked, got %d", n)
	}
	if n := reg.Counter(MetricSkipLocked).Load(); n != 1 {
		t.Errorf("Expected 1 locked skip, got %d", n)
	}
}

// TestEngineLockedStillLoads verifies a locked beat starts the sample load without playing
func TestEngineLockedStillLoads(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine
	e.SetSource(Sample("hihat"))

	if err := e.RealizeBeat(0, 0.5); err != nil {
		t.Fatalf("Expected locked beat to be skipped silently, got %v", err)
	}
	waitFor(t, "hihat cached", func() bool {
		_, ok := e.Cache().Get("hihat")
		return ok
	})
	if n := f.fetcher.count("static/sounds/hihat.wav"); n != 1 {
		t.Errorf("Expected 1 fetch while locked, got %d", n)
	}
	if n := len(f.device.played()); n != 0 {
		t.Errorf("Expected no voices while locked, got %d", n)
	}

	if err := e.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := e.RealizeBeat(1, 1.0); err != nil {
		t.Fatalf("RealizeBeat failed: %v", err)
	}
	if n := len(f.device.played()); n != 1 {
		t.Errorf("Expected the preloaded sample to play after unlock, got %d voices", n)
	}
}

// TestEngineBaseLatency verifies latency is unknown until running, then cached
func TestEngineBaseLatency(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine
	f.device.set(func(d *fakeDevice) { d.latency = 0.05 })

	if got := e.BaseLatency(); got != 0 {
		t.Errorf("Expected 0 before running, got %v", got)
	}

	e.Unlock()
	if got := e.BaseLatency(); got != 0.05 {
		t.Errorf("Expected 0.05 once running, got %v", got)
	}

	f.device.set(func(d *fakeDevice) { d.latency = 0.2 })
	if got := e.BaseLatency(); got != 0.05 {
		t.Errorf("Expected cached 0.05 after device change, got %v", got)
	}
}

// TestEngineBaseLatencyUnreported verifies a running device without a figure stays unknown
func TestEngineBaseLatencyUnreported(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine
	e.Unlock()

	if got := e.BaseLatency(); got != 0 {
		t.Errorf("Expected 0 while unreported, got %v", got)
	}

	f.device.set(func(d *fakeDevice) { d.latency = 0.012 })
	if got := e.BaseLatency(); got != 0.012 {
		t.Errorf("Expected 0.012 once reported, got %v", got)
	}
}

// TestEngineUnknownSampleReported verifies unknown identifiers reach the error channel
func TestEngineUnknownSampleReported(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine
	e.Unlock()
	e.SetSource(Sample("cowbell"))

	if err := e.RealizeBeat(0, 0); err != nil {
		t.Fatalf("Expected playback skip, got %v", err)
	}

	select {
	case err := <-e.Errors():
		if !errors.Is(err, ErrUnknownIdentifier) {
			t.Errorf("Expected ErrUnknownIdentifier, got %v", err)
		}
		var le *LoadError
		if !errors.As(err, &le) || le.ID != "cowbell" {
			t.Errorf("Expected LoadError for cowbell, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for load error")
	}

	waitFor(t, "batch failure to be counted", func() bool {
		return e.Registry().Counter(MetricBatchFailed).Load() == 1
	})
}

// TestEngineErrorQueueOverflow verifies a full channel drops errors without blocking
func TestEngineErrorQueueOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.ErrorQueueSize = 1
	f := newEngineFixture(t, cfg)
	e := f.engine

	for i := 0; i < 3; i++ {
		e.report(errors.New("boom"))
	}

	if n := e.Registry().Counter(MetricErrorsDropped).Load(); n != 2 {
		t.Errorf("Expected 2 dropped errors, got %d", n)
	}
	if len(e.Errors()) != 1 {
		t.Errorf("Expected 1 queued error, got %d", len(e.Errors()))
	}
}

// TestEnginePreloadCatalog verifies preload with no ids loads the whole catalog
func TestEnginePreloadCatalog(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine

	b := e.Preload(context.Background())
	if b == nil {
		t.Fatal("Expected preload batch")
	}
	if err := waitBatch(t, b); err != nil {
		t.Fatalf("Expected preload to succeed, got %v", err)
	}
	if e.Cache().Len() != e.Catalog().Len() {
		t.Errorf("Expected %d cached, got %d", e.Catalog().Len(), e.Cache().Len())
	}
	waitFor(t, "cache gauge", func() bool {
		return e.Registry().Gauge(MetricCached).Get() == float64(e.Catalog().Len())
	})
}

// TestEngineCatalogOverrides verifies config entries replace catalog locations
func TestEngineCatalogOverrides(t *testing.T) {
	cfg := testConfig()
	cfg.CatalogOverrides = map[string]string{
		"hihat": "static/sounds/alt-hihat.wav",
		"kick":  "static/sounds/kick.wav",
	}
	f := newEngineFixture(t, cfg)

	if loc, _ := f.engine.Catalog().Lookup("hihat"); loc != "static/sounds/alt-hihat.wav" {
		t.Errorf("Expected overridden hihat, got %q", loc)
	}
	if f.engine.Catalog().Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", f.engine.Catalog().Len())
	}
}

// TestEngineClose verifies close is idempotent and rejects further beats
func TestEngineClose(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine
	e.Unlock()

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	e.Close()

	f.device.mu.Lock()
	closed := f.device.closed
	f.device.mu.Unlock()
	if closed != 1 {
		t.Errorf("Expected device closed once, got %d", closed)
	}
	if err := e.RealizeBeat(0, 0); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Expected ErrEngineClosed, got %v", err)
	}
	if err := e.Unlock(); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Expected ErrEngineClosed from Unlock, got %v", err)
	}
}

// TestEnginePlayError verifies device failures surface from RealizeBeat
func TestEnginePlayError(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine
	e.Unlock()
	f.device.set(func(d *fakeDevice) { d.playErr = errors.New("underrun") })

	if err := e.RealizeBeat(5, 1); err == nil {
		t.Error("Expected play error")
	}
	if n := e.Registry().Counter(MetricPlayErrors).Load(); n != 1 {
		t.Errorf("Expected 1 play error, got %d", n)
	}
}
