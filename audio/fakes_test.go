package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/pkg/errors"

	"github.com/lixenwraith/clicktrack/catalog"
)

var testFormat = beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}

// silentBuffer returns a device-native buffer of n frames
func silentBuffer(n int) *beep.Buffer {
	buf := beep.NewBuffer(testFormat)
	buf.Append(beep.Silence(n))
	return buf
}

// fakeDevice records every call instead of producing sound
type fakeDevice struct {
	mu       sync.Mutex
	now      float64
	state    DeviceState
	latency  float64
	primes   []int
	primeErr error
	playErr  error
	voices   []Voice
	closed   int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{state: DeviceSuspended}
}

func (d *fakeDevice) Now() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

func (d *fakeDevice) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *fakeDevice) OutputLatency() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latency
}

func (d *fakeDevice) SampleRate() beep.SampleRate {
	return testFormat.SampleRate
}

func (d *fakeDevice) Prime(rate beep.SampleRate, frames int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.primeErr != nil {
		return d.primeErr
	}
	d.primes = append(d.primes, int(rate)*1000+frames)
	d.state = DeviceRunning
	return nil
}

func (d *fakeDevice) Play(v Voice) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playErr != nil {
		return d.playErr
	}
	d.voices = append(d.voices, v)
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	d.state = DeviceClosed
	return nil
}

func (d *fakeDevice) set(fn func(d *fakeDevice)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

func (d *fakeDevice) played() []Voice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Voice(nil), d.voices...)
}

func (d *fakeDevice) primeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.primes)
}

// fakeFetcher serves canned bytes per location and counts requests
// While gate is non-nil every fetch waits for it to close
type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	errs  map[string]error
	calls map[string]int
	gate  chan struct{}
}

func newFakeFetcher(data map[string][]byte) *fakeFetcher {
	return &fakeFetcher{
		data:  data,
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	f.calls[location]++
	gate := f.gate
	data, ok := f.data[location]
	err := f.errs[location]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("GET %s: 404 Not Found", location)
	}
	return data, nil
}

func (f *fakeFetcher) count(location string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[location]
}

func (f *fakeFetcher) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeFetcher) fail(location string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[location] = err
}

func (f *fakeFetcher) heal(location string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, location)
}

// fakeDecoder produces one frame per input byte; "bad" fails and "empty" decodes to nothing
type fakeDecoder struct{}

func (fakeDecoder) Decode(ctx context.Context, data []byte) (*beep.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch string(data) {
	case "bad":
		return nil, errors.New("not a RIFF file")
	case "empty":
		return beep.NewBuffer(testFormat), nil
	}
	return silentBuffer(len(data)), nil
}

func testCatalog(t *testing.T, entries map[string]string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(entries)
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	return c
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.LoadTimeout = 2 * time.Second
	cfg.RetryAfter = time.Minute
	cfg.FetchRate = 0
	return cfg
}

// waitBatch blocks until b ends or the test times out
func waitBatch(t *testing.T, b *Batch) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := b.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatal("Timed out waiting for batch")
	}
	return err
}

// waitFor polls cond until it holds or the test times out
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
