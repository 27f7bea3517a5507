package flush

import (
	"context"
	"sync"
)

// Pool hands out at most Max thread states. Obtain blocks while every state
// is checked out.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	states []*ThreadState
	free   []*ThreadState
	max    int
}

// NewPool returns a pool of up to maxStates states.
func NewPool(maxStates int) *Pool {
	if maxStates <= 0 {
		maxStates = 1
	}
	p := &Pool{max: maxStates}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Obtain checks out a state and returns it locked. The most recently
// released state is preferred so its buffer keeps filling.
func (p *Pool) Obtain(ctx context.Context) (*ThreadState, error) {
	p.mu.Lock()

	if len(p.free) == 0 && len(p.states) >= p.max {
		stop := context.AfterFunc(ctx, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.cond.Broadcast()
		})
		for len(p.free) == 0 {
			if err := ctx.Err(); err != nil {
				p.mu.Unlock()
				stop()
				return nil, err
			}
			p.cond.Wait()
		}
		stop()
	}

	var s *ThreadState
	if n := len(p.free); n > 0 {
		s = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		s = &ThreadState{ord: len(p.states)}
		p.states = append(p.states, s)
	}
	p.mu.Unlock()

	// A flushing goroutine may briefly hold a free state's lock.
	s.Lock()
	return s, nil
}

// Release unlocks s and returns it to the pool.
func (p *Pool) Release(s *ThreadState) {
	s.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = append(p.free, s)
	p.cond.Broadcast()
}

// States returns a snapshot of every state created so far.
func (p *Pool) States() []*ThreadState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*ThreadState, len(p.states))
	copy(out, p.states)
	return out
}

// Len returns the number of states created so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.states)
}

// Max returns the pool's capacity.
func (p *Pool) Max() int { return p.max }
