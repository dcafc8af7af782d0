package audio

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"

	"github.com/lixenwraith/clicktrack/catalog"
	"github.com/lixenwraith/clicktrack/core"
)

// Loader fetches and decodes catalog samples in concurrent batches
type Loader struct {
	catalog     *catalog.Catalog
	fetcher     Fetcher
	decoder     Decoder
	timeout     time.Duration
	concurrency int
	report      func(error)
	logger      *log.Logger
}

// NewLoader creates a loader; report receives every per-identifier failure out of band
func NewLoader(cat *catalog.Catalog, fetcher Fetcher, decoder Decoder, cfg *Config, report func(error)) *Loader {
	if report == nil {
		report = func(error) {}
	}
	return &Loader{
		catalog:     cat,
		fetcher:     fetcher,
		decoder:     decoder,
		timeout:     cfg.LoadTimeout,
		concurrency: cfg.Concurrency,
		report:      report,
		logger:      log.Default(),
	}
}

// Catalog returns the catalog identifiers are resolved against
func (l *Loader) Catalog() *catalog.Catalog {
	return l.catalog
}

// Load starts one fetch+decode per distinct identifier and returns immediately
// onComplete fires exactly once with every requested buffer, and only if all of them decoded;
// the first failure is reported, cancels the rest, and fails the batch instead
func (l *Loader) Load(ctx context.Context, ids []string, onComplete func(map[string]*beep.Buffer)) *Batch {
	ctx, cancel := context.WithCancel(ctx)
	b := newBatch(dedupe(ids), cancel, onComplete)

	if len(b.ids) == 0 {
		b.complete()
		return b
	}

	limit := l.concurrency
	if limit <= 0 || limit > len(b.ids) {
		limit = len(b.ids)
	}

	core.Go(func() {
		wg := sizedwaitgroup.New(limit)
		for _, id := range b.ids {
			// Stop dispatching once the batch has failed or been cancelled
			if err := wg.AddWithContext(ctx); err != nil {
				b.fail(err)
				break
			}
			core.Go(func() {
				defer wg.Done()
				l.loadOne(ctx, b, id)
			})
		}
		wg.Wait()
		cancel()
	})

	return b
}

func (l *Loader) loadOne(ctx context.Context, b *Batch, id string) {
	location, ok := l.catalog.Lookup(id)
	if !ok {
		l.fail(b, &LoadError{ID: id, Kind: ErrUnknownIdentifier})
		return
	}

	itemCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	data, err := l.fetcher.Fetch(itemCtx, location)
	if err != nil {
		l.fail(b, &LoadError{ID: id, Location: location, Kind: ErrTransport, Err: err})
		return
	}

	buf, err := l.decoder.Decode(itemCtx, data)
	if err == nil && (buf == nil || buf.Len() == 0) {
		err = errors.New("decoder returned no audio")
	}
	if err != nil {
		l.fail(b, &LoadError{ID: id, Location: location, Kind: ErrDecode, Err: err})
		return
	}

	b.resolve(id, buf)
}

// fail reports err unless the batch already ended, in which case it is a side effect of cancellation
func (l *Loader) fail(b *Batch, err error) {
	if !b.fail(err) {
		return
	}
	l.logger.Printf("[loader] %v", err)
	l.report(err)
}

// Batch tracks one Load call
type Batch struct {
	ids        []string
	cancel     context.CancelFunc
	onComplete func(map[string]*beep.Buffer)

	mu       sync.Mutex
	results  map[string]*beep.Buffer
	resolved int
	ended    bool
	err      error
	done     chan struct{}
}

func newBatch(ids []string, cancel context.CancelFunc, onComplete func(map[string]*beep.Buffer)) *Batch {
	return &Batch{
		ids:        ids,
		cancel:     cancel,
		onComplete: onComplete,
		results:    make(map[string]*beep.Buffer, len(ids)),
		done:       make(chan struct{}),
	}
}

// IDs returns the distinct identifiers requested
func (b *Batch) IDs() []string {
	return append([]string(nil), b.ids...)
}

// Resolved returns how many identifiers have decoded so far
func (b *Batch) Resolved() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolved
}

// Done is closed when the batch completes or fails
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Err returns nil while running or after completion, otherwise the first failure
func (b *Batch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Wait blocks until the batch ends or ctx is done
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts in-flight work; a batch that has not completed fails with ErrBatchCancelled
func (b *Batch) Cancel() {
	b.fail(ErrBatchCancelled)
}

func (b *Batch) resolve(id string, buf *beep.Buffer) {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return
	}
	if _, dup := b.results[id]; !dup {
		b.results[id] = buf
		b.resolved++
	}
	finished := b.resolved == len(b.ids)
	b.mu.Unlock()

	if finished {
		b.complete()
	}
}

// complete ends the batch successfully and fires onComplete exactly once
func (b *Batch) complete() {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return
	}
	b.ended = true
	results := make(map[string]*beep.Buffer, len(b.results))
	for id, buf := range b.results {
		results[id] = buf
	}
	b.mu.Unlock()

	b.cancel()
	if b.onComplete != nil {
		b.onComplete(results)
	}
	close(b.done)
}

// fail ends the batch with err, returning false if it had already ended
func (b *Batch) fail(err error) bool {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return false
	}
	b.ended = true
	b.err = err
	b.mu.Unlock()

	b.cancel()
	close(b.done)
	return true
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
