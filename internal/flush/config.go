package flush

import "fmt"

// Defaults for Config.
const (
	DefaultRAMBufferSizeMB         = 16.0
	DefaultRAMPerThreadHardLimitMB = 1945
	DefaultMaxThreadStates         = 8
)

const mb = 1024 * 1024

// Config holds the flush triggers. Each trigger is switched off with
// Disabled.
type Config struct {
	// MaxBufferedDocs flushes a buffer once it holds this many docs.
	MaxBufferedDocs int
	// RAMBufferSizeMB flushes the largest buffer once all buffers plus
	// buffered deletes use this much RAM.
	RAMBufferSizeMB float64
	// MaxBufferedDeleteTerms applies deletes once this many term deletes
	// are buffered.
	MaxBufferedDeleteTerms int
	// RAMPerThreadHardLimitMB forces a flush of any single buffer above it.
	RAMPerThreadHardLimitMB int
}

// DefaultConfig flushes by RAM only.
func DefaultConfig() Config {
	return Config{
		MaxBufferedDocs:         Disabled,
		RAMBufferSizeMB:         DefaultRAMBufferSizeMB,
		MaxBufferedDeleteTerms:  Disabled,
		RAMPerThreadHardLimitMB: DefaultRAMPerThreadHardLimitMB,
	}
}

// Validate checks the triggers. At least one of MaxBufferedDocs and
// RAMBufferSizeMB must be enabled.
func (c Config) Validate() error {
	if c.MaxBufferedDocs == Disabled && c.RAMBufferSizeMB == Disabled {
		return fmt.Errorf("%w: at least one of MaxBufferedDocs and RAMBufferSizeMB must be enabled", ErrInvalidConfig)
	}
	if c.MaxBufferedDocs != Disabled && c.MaxBufferedDocs < 2 {
		return fmt.Errorf("%w: MaxBufferedDocs must be at least 2, got %d", ErrInvalidConfig, c.MaxBufferedDocs)
	}
	if c.RAMBufferSizeMB != Disabled && c.RAMBufferSizeMB <= 0 {
		return fmt.Errorf("%w: RAMBufferSizeMB must be positive, got %g", ErrInvalidConfig, c.RAMBufferSizeMB)
	}
	if c.MaxBufferedDeleteTerms != Disabled && c.MaxBufferedDeleteTerms < 1 {
		return fmt.Errorf("%w: MaxBufferedDeleteTerms must be positive, got %d", ErrInvalidConfig, c.MaxBufferedDeleteTerms)
	}
	if c.RAMPerThreadHardLimitMB <= 0 || c.RAMPerThreadHardLimitMB >= 2048 {
		return fmt.Errorf("%w: RAMPerThreadHardLimitMB must be in (0, 2048), got %d", ErrInvalidConfig, c.RAMPerThreadHardLimitMB)
	}
	return nil
}

func (c Config) flushOnDocCount() bool { return c.MaxBufferedDocs != Disabled }

func (c Config) flushOnRAM() bool { return c.RAMBufferSizeMB != Disabled }

func (c Config) flushOnDeleteTerms() bool { return c.MaxBufferedDeleteTerms != Disabled }

func (c Config) ramBufferBytes() int64 { return int64(c.RAMBufferSizeMB * mb) }

func (c Config) hardLimitBytes() int64 { return int64(c.RAMPerThreadHardLimitMB) * mb }
