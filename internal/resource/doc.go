// Package resource bounds the background side of indexing.
//
// Indexing threads are throttled by flush control. Work they hand off goes
// through a Controller instead:
//
//   - Jobs: a weighted semaphore caps concurrent segment flushes and merges.
//   - Memory: merges reserve their working set up front and fail fast with
//     ErrMemoryLimitExceeded rather than block.
//   - IO: a token bucket throttles segment writes. RateLimitedWriter wraps
//     a blob writer.
//
//	rc := resource.NewController(resource.Config{
//	    MaxBackgroundJobs:  4,
//	    IOLimitBytesPerSec: 64 << 20,
//	})
//	if err := rc.AcquireJob(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseJob()
package resource
