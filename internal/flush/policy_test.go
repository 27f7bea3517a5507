package flush

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(*Config){
		"all disabled":      func(c *Config) { c.RAMBufferSizeMB = Disabled },
		"one doc":           func(c *Config) { c.MaxBufferedDocs = 1 },
		"zero ram":          func(c *Config) { c.RAMBufferSizeMB = 0 },
		"zero delete terms": func(c *Config) { c.MaxBufferedDeleteTerms = 0 },
		"hard limit":        func(c *Config) { c.RAMPerThreadHardLimitMB = 2048 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestPolicyFlushByDocCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RAMBufferSizeMB = Disabled
	cfg.MaxBufferedDocs = 3

	p := NewPool(1)
	c := NewControl(cfg, p, nil)
	s, buf := obtain(t, p, "a", 1)

	assert.Nil(t, addDoc(c, s, kb))
	assert.Nil(t, addDoc(c, s, kb))
	flushed := addDoc(c, s, kb)
	require.NotNil(t, flushed)
	assert.Same(t, buf, flushed)
	assert.False(t, s.IsInitialized())
	assert.Equal(t, int64(3*kb), c.FlushBytes())
	assert.Zero(t, c.ActiveBytes())

	c.DoAfterFlush(flushed)
	assert.Zero(t, c.FlushBytes())
	p.Release(s)
}

type decision struct {
	returned string
	pending  []bool
	stats    Stats
}

// runRAMScenario fills two buffers until the RAM budget marks one pending.
func runRAMScenario(t *testing.T) []decision {
	p := NewPool(2)
	c := NewControl(ramConfig(1), p, &fakeDeletes{})
	a, _ := obtain(t, p, "a", 1)
	b, _ := obtain(t, p, "b", 1)

	var out []decision
	record := func(got Buffer) {
		name := ""
		if got != nil {
			name = got.(*fakeBuffer).name
		}
		out = append(out, decision{
			returned: name,
			pending:  []bool{a.FlushPending(), b.FlushPending()},
			stats:    c.Stats(),
		})
	}

	record(addDoc(c, a, 600*kb))
	record(addDoc(c, b, 300*kb))
	record(addDoc(c, b, 200*kb))

	p.Release(a)
	p.Release(b)
	record(c.NextPendingFlush())
	return out
}

func TestPolicyFlushByRAMMarksLargest(t *testing.T) {
	got := runRAMScenario(t)
	require.Len(t, got, 4)

	assert.Equal(t, "", got[2].returned)
	assert.Equal(t, []bool{true, false}, got[2].pending)
	assert.Equal(t, int64(600*kb), got[2].stats.FlushBytes)
	assert.Equal(t, int64(500*kb), got[2].stats.ActiveBytes)
	assert.Equal(t, int64(1), got[2].stats.NumPending)

	assert.Equal(t, "a", got[3].returned)
	assert.Equal(t, 1, got[3].stats.NumFlushing)
	assert.Zero(t, got[3].stats.NumPending)
}

func TestPolicyDeterminism(t *testing.T) {
	assert.Equal(t, runRAMScenario(t), runRAMScenario(t))
}

func TestPolicyOnDelete(t *testing.T) {
	cfg := ramConfig(1)
	cfg.MaxBufferedDeleteTerms = 2
	deletes := &fakeDeletes{terms: 1}
	c := NewControl(cfg, NewPool(1), deletes)

	c.DoOnDelete()
	assert.False(t, c.GetAndResetApplyAllDeletes())

	deletes.terms = 2
	c.DoOnDelete()
	assert.True(t, c.GetAndResetApplyAllDeletes())
	assert.False(t, c.GetAndResetApplyAllDeletes())

	deletes.terms = 0
	deletes.bytes = 2 * mb
	c.DoOnDelete()
	assert.True(t, c.GetAndResetApplyAllDeletes())
}

func TestPolicyDeleteBytesCountTowardsRAM(t *testing.T) {
	p := NewPool(1)
	c := NewControl(ramConfig(1), p, &fakeDeletes{bytes: 900 * kb})
	s, _ := obtain(t, p, "a", 1)

	flushed := addDoc(c, s, 200*kb)
	assert.NotNil(t, flushed)
	p.Release(s)
}

type countingPolicy struct {
	inserts, deletes, updates int
}

func (p *countingPolicy) OnInsert(*Control, *ThreadState) { p.inserts++ }
func (p *countingPolicy) OnDelete(*Control, *ThreadState) { p.deletes++ }
func (p *countingPolicy) OnUpdate(*Control, *ThreadState) { p.updates++ }

func TestCustomPolicy(t *testing.T) {
	policy := &countingPolicy{}
	p := NewPool(1)
	c := NewControl(DefaultConfig(), p, nil, WithPolicy(policy))
	s, buf := obtain(t, p, "a", 1)

	buf.numDocs++
	assert.Nil(t, c.DoAfterDocument(s, true))
	assert.Nil(t, c.DoAfterDocument(s, false))
	c.DoOnDelete()

	assert.Equal(t, 1, policy.inserts)
	assert.Equal(t, 1, policy.updates)
	assert.Equal(t, 1, policy.deletes)
	p.Release(s)
}
