package lexgo

import (
	"log/slog"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/analysis"
	"github.com/hupe1980/lexgo/internal/codec"
	"github.com/hupe1980/lexgo/internal/engine"
	"github.com/hupe1980/lexgo/internal/flush"
	"github.com/hupe1980/lexgo/internal/resource"
)

type options struct {
	logger          *Logger
	metrics         MetricsObserver
	flushConfig     FlushConfig
	maxThreadStates int
	store           blobstore.BlobStore
	compression     string
	resource        *ResourceConfig
	mappedArena     bool
	jsonManifest    bool
	stopWords       []string
	maxTokenLength  int
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithLogLevel logs text to stderr at level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsObserver sets the observer receiving flush, merge, commit and
// stall events.
func WithMetricsObserver(m MetricsObserver) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithFlushConfig sets when buffered documents are flushed into segments.
// Disable a trigger with Disabled; at least one of MaxBufferedDocs and
// RAMBufferSizeMB must stay enabled.
func WithFlushConfig(cfg FlushConfig) Option {
	return func(o *options) {
		o.flushConfig = cfg
	}
}

// WithMaxThreadStates bounds the documents indexed concurrently.
func WithMaxThreadStates(n int) Option {
	return func(o *options) {
		o.maxThreadStates = n
	}
}

// WithBlobStore persists segments and commits in st.
func WithBlobStore(st blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithCompression sets segment compression: "none", "lz4" or "zstd".
func WithCompression(name string) Option {
	return func(o *options) {
		o.compression = name
	}
}

// WithResourceConfig limits merge memory, background jobs and segment write
// bandwidth.
func WithResourceConfig(cfg ResourceConfig) Option {
	return func(o *options) {
		o.resource = &cfg
	}
}

// WithMappedArena keeps buffered postings in memory mapped outside the Go
// heap.
func WithMappedArena() Option {
	return func(o *options) {
		o.mappedArena = true
	}
}

// WithJSONManifest writes commit manifests as JSON.
func WithJSONManifest() Option {
	return func(o *options) {
		o.jsonManifest = true
	}
}

// WithStopWords drops the given words from text fields.
func WithStopWords(words ...string) Option {
	return func(o *options) {
		o.stopWords = append(o.stopWords, words...)
	}
}

// WithMaxTokenLength drops longer tokens from text fields.
func WithMaxTokenLength(n int) Option {
	return func(o *options) {
		o.maxTokenLength = n
	}
}

func defaultOptions() *options {
	return &options{
		logger:          NoopLogger(),
		metrics:         &NoopMetricsObserver{},
		flushConfig:     flush.DefaultConfig(),
		maxThreadStates: engine.DefaultMaxThreadStates,
		compression:     "lz4",
	}
}

func (o *options) engineOptions() ([]engine.Option, error) {
	c, err := codec.ParseCompression(o.compression)
	if err != nil {
		return nil, err
	}

	var aopts []analysis.Option
	if len(o.stopWords) > 0 {
		aopts = append(aopts, analysis.WithStopWords(o.stopWords...))
	}
	if o.maxTokenLength > 0 {
		aopts = append(aopts, analysis.WithMaxTokenLength(o.maxTokenLength))
	}

	eopts := []engine.Option{
		engine.WithLogger(o.logger.Logger),
		engine.WithMetricsObserver(loggingObserver{MetricsObserver: o.metrics, logger: o.logger}),
		engine.WithFlushConfig(o.flushConfig),
		engine.WithMaxThreadStates(o.maxThreadStates),
		engine.WithAnalyzer(analysis.NewStandardAnalyzer(aopts...)),
		engine.WithCompression(c),
	}
	if o.store != nil {
		eopts = append(eopts, engine.WithBlobStore(o.store))
	}
	if o.resource != nil {
		eopts = append(eopts, engine.WithResourceController(resource.NewController(*o.resource)))
	}
	if o.mappedArena {
		eopts = append(eopts, engine.WithMappedArena())
	}
	if o.jsonManifest {
		eopts = append(eopts, engine.WithJSONManifest())
	}
	return eopts, nil
}
