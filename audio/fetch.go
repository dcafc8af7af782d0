package audio

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/lixenwraith/clicktrack/constant"
)

// Fetcher retrieves the raw bytes stored at a catalog location
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// HTTPFetcher issues GET requests, optionally rate limited
type HTTPFetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	base     *url.URL
	maxBytes int64
	logger   *log.Logger
}

// NewHTTPFetcher creates a fetcher resolving relative locations against base (may be nil)
func NewHTTPFetcher(client *http.Client, base *url.URL, limiter *rate.Limiter, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: constant.HTTPClientTimeout}
	}
	if maxBytes <= 0 {
		maxBytes = constant.MaxSampleBytes
	}
	return &HTTPFetcher{
		client:   client,
		limiter:  limiter,
		base:     base,
		maxBytes: maxBytes,
		logger:   log.Default(),
	}
}

// Fetch downloads location; non-200 responses and oversized bodies are errors
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	target, err := f.resolve(location)
	if err != nil {
		return nil, err
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "create request %s", target)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", target)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GET %s: %s", target, resp.Status)
	}

	// Read one byte past the limit to detect oversized bodies
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", target)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errors.Errorf("GET %s: body exceeds %s", target, humanize.Bytes(uint64(f.maxBytes)))
	}

	f.logger.Printf("[fetch] %s: %s", target, humanize.Bytes(uint64(len(data))))
	return data, nil
}

func (f *HTTPFetcher) resolve(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", errors.Wrapf(err, "parse location %q", location)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if f.base == nil {
		return "", errors.Errorf("relative location %q without base URL", location)
	}
	return f.base.ResolveReference(u).String(), nil
}

// FileFetcher reads locations from the filesystem relative to a root directory
type FileFetcher struct {
	root     string
	maxBytes int64
}

// NewFileFetcher creates a filesystem fetcher rooted at root
func NewFileFetcher(root string, maxBytes int64) *FileFetcher {
	if maxBytes <= 0 {
		maxBytes = constant.MaxSampleBytes
	}
	return &FileFetcher{root: root, maxBytes: maxBytes}
}

// Fetch reads the file at location; "file://" prefixes are accepted
func (f *FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := strings.TrimPrefix(location, "file://")
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.root, filepath.FromSlash(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if info.Size() > f.maxBytes {
		return nil, errors.Errorf("%s: %s exceeds %s", path,
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(f.maxBytes)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// RoutingFetcher sends http(s) locations, or all locations when a base URL is configured,
// to the HTTP fetcher and everything else to the filesystem
type RoutingFetcher struct {
	http    *HTTPFetcher
	file    *FileFetcher
	remotes bool
}

// NewFetcher builds the fetcher described by cfg
func NewFetcher(cfg *Config) (*RoutingFetcher, error) {
	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, errors.Wrapf(err, "parse base URL %q", cfg.BaseURL)
		}
		if !u.IsAbs() {
			return nil, errors.Errorf("base URL %q is not absolute", cfg.BaseURL)
		}
		base = u
	}

	var limiter *rate.Limiter
	if cfg.FetchRate > 0 {
		burst := cfg.FetchBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.FetchRate), burst)
	}

	return &RoutingFetcher{
		http:    NewHTTPFetcher(nil, base, limiter, cfg.MaxSampleBytes),
		file:    NewFileFetcher(cfg.SampleRoot, cfg.MaxSampleBytes),
		remotes: base != nil,
	}, nil
}

// Fetch implements Fetcher
func (r *RoutingFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if r.remotes || isHTTP(location) {
		return r.http.Fetch(ctx, location)
	}
	return r.file.Fetch(ctx, location)
}

func isHTTP(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
