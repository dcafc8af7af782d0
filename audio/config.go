package audio

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/lixenwraith/clicktrack/constant"
)

// Config holds engine and sample loading settings
type Config struct {
	// SampleRate is the device output rate; decoded samples are resampled to it
	SampleRate int

	// ToneDuration bounds each synthesized click
	ToneDuration time.Duration

	// BufferDuration is the speaker buffer length
	BufferDuration time.Duration

	// Sample retrieval
	BaseURL        string // Resolve relative catalog locations over HTTP when set
	SampleRoot     string // Filesystem root for relative locations otherwise
	LoadTimeout    time.Duration
	RetryAfter     time.Duration // Wait before re-requesting a failed sample
	MaxSampleBytes int64
	FetchRate      float64 // Requests per second, 0 disables limiting
	FetchBurst     int
	Concurrency    int // Parallel fetch+decode per batch, 0 = one per identifier

	// ErrorQueueSize bounds the out-of-band error channel
	ErrorQueueSize int

	// Catalog overrides merged on top of the configured catalog
	CatalogOverrides map[string]string

	// PreloadAll loads the whole catalog when the service starts
	PreloadAll bool
}

// DefaultConfig returns the production defaults
func DefaultConfig() *Config {
	return &Config{
		SampleRate:     constant.AudioSampleRate,
		ToneDuration:   constant.ToneDuration,
		BufferDuration: constant.SpeakerBufferDuration,
		SampleRoot:     ".",
		LoadTimeout:    constant.LoadTimeout,
		RetryAfter:     constant.RetryAfter,
		MaxSampleBytes: constant.MaxSampleBytes,
		FetchRate:      constant.FetchRatePerSec,
		FetchBurst:     constant.FetchBurst,
		Concurrency:    constant.LoadConcurrency,
		ErrorQueueSize: constant.ErrorQueueSize,
	}
}

// LoadConfig loads configuration from environment variables on top of the defaults
// Unparseable or out-of-range values keep the default
func LoadConfig() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("CLICKTRACK_SAMPLE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SampleRate = n
		}
	}

	// Durations are given in milliseconds
	envMillis("CLICKTRACK_TONE_MS", &cfg.ToneDuration)
	envMillis("CLICKTRACK_BUFFER_MS", &cfg.BufferDuration)
	envMillis("CLICKTRACK_LOAD_TIMEOUT_MS", &cfg.LoadTimeout)
	envMillis("CLICKTRACK_RETRY_MS", &cfg.RetryAfter)

	if v := os.Getenv("CLICKTRACK_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("CLICKTRACK_SAMPLE_ROOT"); v != "" {
		cfg.SampleRoot = v
	}

	if v := os.Getenv("CLICKTRACK_MAX_SAMPLE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxSampleBytes = n
		}
	}

	if v := os.Getenv("CLICKTRACK_FETCH_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.FetchRate = f
		}
	}

	if v := os.Getenv("CLICKTRACK_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Concurrency = n
		}
	}

	if v := os.Getenv("CLICKTRACK_PRELOAD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PreloadAll = b
		}
	}

	// Catalog overrides from JSON: {"hihat": "https://host/hihat.wav"}
	if v := os.Getenv("CLICKTRACK_CATALOG"); v != "" {
		var entries map[string]string
		if err := json.Unmarshal([]byte(v), &entries); err == nil {
			cfg.CatalogOverrides = entries
		} else {
			log.Printf("[audio] ignoring CLICKTRACK_CATALOG: %v", err)
		}
	}

	return cfg
}

func envMillis(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Millisecond
	}
}
