package engine

import (
	"log/slog"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/analysis"
	"github.com/hupe1980/lexgo/internal/arena"
	"github.com/hupe1980/lexgo/internal/codec"
	"github.com/hupe1980/lexgo/internal/flush"
	"github.com/hupe1980/lexgo/internal/resource"
)

// DefaultMaxThreadStates bounds the per-thread buffers when no limit is set.
const DefaultMaxThreadStates = flush.DefaultMaxThreadStates

// defaultFreeBlocks is the number of recycled arena blocks kept for reuse.
const defaultFreeBlocks = 64

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger for the writer.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetricsObserver sets the metrics observer for the writer.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(w *Writer) {
		if observer != nil {
			w.metrics = observer
		}
	}
}

// WithFlushConfig sets the flush triggers.
func WithFlushConfig(cfg flush.Config) Option {
	return func(w *Writer) {
		w.flushConfig = cfg
	}
}

// WithFlushPolicy replaces the default RAM-or-counts flush policy.
func WithFlushPolicy(p flush.Policy) Option {
	return func(w *Writer) {
		w.policy = p
	}
}

// WithMaxThreadStates bounds the number of per-thread buffers, and with it
// the number of documents indexed concurrently.
func WithMaxThreadStates(n int) Option {
	return func(w *Writer) {
		w.maxThreadStates = n
	}
}

// WithAnalyzer sets the analyzer for text fields.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(w *Writer) {
		if a != nil {
			w.analyzer = a
		}
	}
}

// WithAllocator sets the source of arena blocks. It must be safe for
// concurrent use.
func WithAllocator(a arena.Allocator) Option {
	return func(w *Writer) {
		w.allocator = a
	}
}

// WithMappedArena takes arena blocks from anonymous memory mappings charged
// against the resource controller's memory budget.
func WithMappedArena() Option {
	return func(w *Writer) {
		w.mappedArena = true
	}
}

// WithResourceController sets the resource controller gating background
// flushes, merge memory and segment write bandwidth.
func WithResourceController(rc *resource.Controller) Option {
	return func(w *Writer) {
		w.rc = rc
	}
}

// WithBlobStore sets the store for segments, live docs and manifests.
func WithBlobStore(st blobstore.BlobStore) Option {
	return func(w *Writer) {
		w.store = st
	}
}

// WithCompression sets the compression of segment blobs.
func WithCompression(c codec.Compression) Option {
	return func(w *Writer) {
		w.compression = c
	}
}

// WithJSONManifest writes manifests as JSON.
func WithJSONManifest() Option {
	return func(w *Writer) {
		w.jsonManifest = true
	}
}
