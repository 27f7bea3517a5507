package resource

import (
	"context"
	"io"
)

// Syncer is implemented by writers that can flush to stable storage.
type Syncer interface {
	Sync() error
}

// RateLimitedWriter throttles writes through a Controller.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.WriteCloser
	rc  *Controller
}

// NewRateLimitedWriter wraps w. Sync is forwarded when w implements Syncer.
func NewRateLimitedWriter(ctx context.Context, w io.WriteCloser, rc *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, rc: rc}
}

func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	if err := w.rc.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}

// Sync flushes the wrapped writer.
func (w *RateLimitedWriter) Sync() error {
	if s, ok := w.w.(Syncer); ok {
		return s.Sync()
	}
	return nil
}

// Close closes the wrapped writer.
func (w *RateLimitedWriter) Close() error {
	return w.w.Close()
}
