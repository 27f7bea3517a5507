package lexgo

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/lexgo/internal/engine"
)

// MetricsObserver receives indexing events. Implement it to integrate with
// monitoring systems; PrometheusObserver is a ready-made one.
type MetricsObserver = engine.MetricsObserver

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
// Use this when metrics collection is not needed.
type NoopMetricsObserver = engine.NoopMetricsObserver

// BasicMetricsObserver provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsObserver struct {
	FlushCount       atomic.Int64
	FlushErrors      atomic.Int64
	FlushTotalNanos  atomic.Int64
	FlushedDocs      atomic.Int64
	FlushedBytes     atomic.Int64
	DeletedDocs      atomic.Int64
	UpdatedDocs      atomic.Int64
	MergeCount       atomic.Int64
	MergeErrors      atomic.Int64
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	StallCount       atomic.Int64
	StallTotalNanos  atomic.Int64
	TicketQueueDepth atomic.Int64
}

// OnFlush implements MetricsObserver.
func (b *BasicMetricsObserver) OnFlush(duration time.Duration, docs int, bytes int64, err error) {
	b.FlushCount.Add(1)
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushedDocs.Add(int64(docs))
	b.FlushedBytes.Add(bytes)
}

// OnApplyDeletes implements MetricsObserver.
func (b *BasicMetricsObserver) OnApplyDeletes(duration time.Duration, deleted, updated int) {
	b.DeletedDocs.Add(int64(deleted))
	b.UpdatedDocs.Add(int64(updated))
}

// OnMerge implements MetricsObserver.
func (b *BasicMetricsObserver) OnMerge(duration time.Duration, inputSegments int, outputDocs int, err error) {
	b.MergeCount.Add(1)
	if err != nil {
		b.MergeErrors.Add(1)
	}
}

// OnCommit implements MetricsObserver.
func (b *BasicMetricsObserver) OnCommit(duration time.Duration, generation uint64, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// OnStall implements MetricsObserver.
func (b *BasicMetricsObserver) OnStall(duration time.Duration) {
	b.StallCount.Add(1)
	b.StallTotalNanos.Add(duration.Nanoseconds())
}

// OnQueueDepth implements MetricsObserver.
func (b *BasicMetricsObserver) OnQueueDepth(name string, depth int) {
	if name == "tickets" {
		b.TicketQueueDepth.Store(int64(depth))
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsObserver) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FlushCount:     b.FlushCount.Load(),
		FlushErrors:    b.FlushErrors.Load(),
		FlushAvgNanos:  avg(b.FlushTotalNanos.Load(), b.FlushCount.Load()),
		FlushedDocs:    b.FlushedDocs.Load(),
		FlushedBytes:   b.FlushedBytes.Load(),
		DeletedDocs:    b.DeletedDocs.Load(),
		UpdatedDocs:    b.UpdatedDocs.Load(),
		MergeCount:     b.MergeCount.Load(),
		MergeErrors:    b.MergeErrors.Load(),
		CommitCount:    b.CommitCount.Load(),
		CommitErrors:   b.CommitErrors.Load(),
		StallCount:     b.StallCount.Load(),
		StallAvgNanos:  avg(b.StallTotalNanos.Load(), b.StallCount.Load()),
		TicketQueueLen: b.TicketQueueDepth.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsObserver state.
type BasicMetricsStats struct {
	FlushCount     int64
	FlushErrors    int64
	FlushAvgNanos  int64
	FlushedDocs    int64
	FlushedBytes   int64
	DeletedDocs    int64
	UpdatedDocs    int64
	MergeCount     int64
	MergeErrors    int64
	CommitCount    int64
	CommitErrors   int64
	StallCount     int64
	StallAvgNanos  int64
	TicketQueueLen int64
}

// loggingObserver forwards to next and logs stalls and deletes.
type loggingObserver struct {
	MetricsObserver
	logger *Logger
}

func (o loggingObserver) OnStall(duration time.Duration) {
	o.logger.LogStall(context.Background(), duration)
	o.MetricsObserver.OnStall(duration)
}

func (o loggingObserver) OnApplyDeletes(duration time.Duration, deleted, updated int) {
	if deleted > 0 || updated > 0 {
		o.logger.LogApplyDeletes(context.Background(), deleted, updated, duration)
	}
	o.MetricsObserver.OnApplyDeletes(duration, deleted, updated)
}
