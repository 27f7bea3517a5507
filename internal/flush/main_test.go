package flush

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	Assertions = true
	os.Exit(m.Run())
}

const kb = 1024

type fakeBuffer struct {
	name    string
	numDocs int
	bytes   int64
	gen     int64
}

func (b *fakeBuffer) NumDocs() int            { return b.numDocs }
func (b *fakeBuffer) BytesUsed() int64        { return b.bytes }
func (b *fakeBuffer) DeleteGeneration() int64 { return b.gen }

type fakeDeletes struct {
	bytes int64
	terms int64
}

func (d *fakeDeletes) BytesUsed() int64            { return d.bytes }
func (d *fakeDeletes) NumGlobalTermDeletes() int64 { return d.terms }

// obtain checks out a state and installs a fresh buffer if it has none.
func obtain(t *testing.T, p *Pool, name string, gen int64) (*ThreadState, *fakeBuffer) {
	t.Helper()
	s, err := p.Obtain(context.Background())
	require.NoError(t, err)
	if !s.IsInitialized() {
		s.Init(&fakeBuffer{name: name, gen: gen})
	}
	return s, s.Buffer().(*fakeBuffer)
}

func addDoc(c *Control, s *ThreadState, bytes int64) Buffer {
	b := s.Buffer().(*fakeBuffer)
	b.numDocs++
	b.bytes += bytes
	return c.DoAfterDocument(s, false)
}

func ramConfig(mbs float64) Config {
	cfg := DefaultConfig()
	cfg.RAMBufferSizeMB = mbs
	return cfg
}
