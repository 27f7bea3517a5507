package engine

import (
	"sync"

	"github.com/hupe1980/lexgo/internal/updates"
)

// flushedSegment is the outcome of flushing one buffer.
type flushedSegment struct {
	seg *segment
	// private carries the buffer's query deletes and doc-value updates.
	private *updates.Frozen
	docs    int
}

// flushTicket holds a frozen global packet and, for buffer flushes, the
// flushed segment. Tickets are published in the order they were added, so
// packet generations follow freeze order.
type flushTicket struct {
	global  *updates.Frozen
	flushed *flushedSegment
	pending bool
	failed  bool
}

type ticketQueue struct {
	mu      sync.Mutex
	tickets []*flushTicket

	purgeMu sync.Mutex
}

// addFlushTicket freezes the global packet on behalf of pt and queues a
// ticket waiting for pt's segment. A ticket is queued whenever a packet was
// frozen, so deletes are never lost; on error it is already failed.
func (q *ticketQueue) addFlushTicket(pt *perThread) (*flushTicket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	global, err := pt.prepareFlush()
	if err != nil {
		if global != nil {
			q.tickets = append(q.tickets, &flushTicket{global: global, failed: true})
		}
		return nil, err
	}
	t := &flushTicket{global: global, pending: true}
	q.tickets = append(q.tickets, t)
	return t, nil
}

// addDeletes queues the frozen global packet of dq, if it holds anything.
func (q *ticketQueue) addDeletes(dq *deleteQueue) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	global, _, err := dq.freezeGlobal(nil)
	if err != nil || global == nil {
		return err
	}
	q.tickets = append(q.tickets, &flushTicket{global: global})
	return nil
}

// markDone completes t. A nil flushed marks it failed.
func (q *ticketQueue) markDone(t *flushTicket, flushed *flushedSegment) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t.flushed = flushed
	t.failed = flushed == nil
	t.pending = false
}

// purge publishes completed tickets from the head of the queue, stopping at
// the first pending one.
func (q *ticketQueue) purge(publish func(*flushTicket)) int {
	q.purgeMu.Lock()
	defer q.purgeMu.Unlock()

	var n int
	for {
		q.mu.Lock()
		if len(q.tickets) == 0 || q.tickets[0].pending {
			q.mu.Unlock()
			return n
		}
		t := q.tickets[0]
		q.tickets[0] = nil
		q.tickets = q.tickets[1:]
		q.mu.Unlock()

		publish(t)
		n++
	}
}

// len returns the queued tickets.
func (q *ticketQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tickets)
}
