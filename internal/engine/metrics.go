package engine

import "time"

// MetricsObserver defines the interface for observing writer events.
type MetricsObserver interface {
	// OnFlush is called when a segment flush completes.
	OnFlush(duration time.Duration, docs int, bytes int64, err error)

	// OnApplyDeletes is called after pending packets were resolved.
	OnApplyDeletes(duration time.Duration, deleted, updated int)

	// OnMerge is called when a merge completes.
	OnMerge(duration time.Duration, inputSegments int, outputDocs int, err error)

	// OnCommit is called when a commit completes.
	OnCommit(duration time.Duration, generation uint64, err error)

	// OnStall is called when an indexing goroutine was held back by a stall.
	OnStall(duration time.Duration)

	// OnQueueDepth reports the depth of a writer queue.
	OnQueueDepth(name string, depth int)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (o *NoopMetricsObserver) OnFlush(duration time.Duration, docs int, bytes int64, err error) {}
func (o *NoopMetricsObserver) OnApplyDeletes(duration time.Duration, deleted, updated int)     {}
func (o *NoopMetricsObserver) OnMerge(duration time.Duration, inputSegments int, outputDocs int, err error) {
}
func (o *NoopMetricsObserver) OnCommit(duration time.Duration, generation uint64, err error) {}
func (o *NoopMetricsObserver) OnStall(duration time.Duration)                                {}
func (o *NoopMetricsObserver) OnQueueDepth(name string, depth int)                           {}
