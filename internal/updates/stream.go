package updates

import (
	"cmp"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/lexgo/internal/docvalues"
	"github.com/hupe1980/lexgo/model"
)

// Segment is the view of a flushed segment needed to apply packets.
type Segment interface {
	model.SegmentReader

	// Name identifies the segment in logs.
	Name() string

	// BufferedDeletesGen is the newest generation already applied.
	BufferedDeletesGen() int64
	SetBufferedDeletesGen(gen int64)

	IsDeleted(doc int) bool
	// Delete marks doc deleted and reports whether it was live.
	Delete(doc int) bool
	NumDeleted() int

	// ApplyDocValuesUpdates installs c. Values for deleted docs are absent.
	ApplyDocValuesUpdates(c *docvalues.Container) error
}

// ApplyResult describes one ApplyDeletesAndUpdates call.
type ApplyResult struct {
	// AnyDeletes reports whether any doc was newly deleted.
	AnyDeletes bool
	// Gen is the generation stamped on every visited segment.
	Gen int64
	// AllDeleted lists segments with no live doc left.
	AllDeleted []Segment
	// DeletedDocs counts newly deleted docs.
	DeletedDocs int
	// UpdatedDocs counts doc-value updates installed.
	UpdatedDocs int
}

// Stream assigns delete generations to frozen packets and applies them to
// segments.
type Stream struct {
	mu      sync.Mutex
	packets []*Frozen
	nextGen int64

	bytesUsed atomic.Int64
	numTerms  atomic.Int64

	logger *slog.Logger
}

// NewStream returns an empty stream whose first generation is 1.
func NewStream(logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stream{nextGen: 1, logger: logger}
}

// Push assigns the next generation to f and appends it.
func (s *Stream) Push(f *Frozen) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.SetDelGen(s.nextGen)
	s.nextGen++
	invariant(len(s.packets) == 0 || s.packets[len(s.packets)-1].delGen < f.delGen,
		"packet generations not increasing")

	s.packets = append(s.packets, f)
	s.numTerms.Add(f.numTermDeletes)
	s.bytesUsed.Add(f.bytesUsed)

	s.logger.Debug("push deletes", "packet", f.String(), "packets", len(s.packets))
	return f.delGen
}

// NextGen consumes and returns a generation without a packet.
func (s *Stream) NextGen() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.nextGen
	s.nextGen++
	return gen
}

// Any reports whether packets are pending.
func (s *Stream) Any() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.packets) > 0
}

// NumPackets returns the number of pending packets.
func (s *Stream) NumPackets() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.packets)
}

// BytesUsed returns the RAM held by pending packets.
func (s *Stream) BytesUsed() int64 { return s.bytesUsed.Load() }

// NumTerms returns the term deletes held by pending packets.
func (s *Stream) NumTerms() int64 { return s.numTerms.Load() }

// Clear drops every pending packet.
func (s *Stream) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packets = nil
	s.numTerms.Store(0)
	s.bytesUsed.Store(0)
}

// ApplyDeletesAndUpdates resolves pending packets against segments.
//
// Segments are visited newest to oldest while global packets newer than the
// current segment accumulate into a Coalesced view. A segment-private packet
// applies only to the segment carrying its generation. Every visited segment
// ends up stamped with the returned generation.
func (s *Stream) ApplyDeletesAndUpdates(segments []Segment) (*ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	if len(segments) == 0 || len(s.packets) == 0 {
		gen := s.nextGen
		s.nextGen++
		return &ApplyResult{Gen: gen}, nil
	}

	infos := slices.Clone(segments)
	slices.SortStableFunc(infos, func(a, b Segment) int {
		return cmp.Compare(a.BufferedDeletesGen(), b.BufferedDeletesGen())
	})

	// The generation is consumed before any segment is stamped, so a failed
	// apply can never hand it to the next pushed packet.
	gen := s.nextGen
	s.nextGen++
	res := &ApplyResult{Gen: gen}

	var coalesced *Coalesced
	infosIdx := len(infos) - 1
	delIdx := len(s.packets) - 1

	for infosIdx >= 0 {
		var packet *Frozen
		if delIdx >= 0 {
			packet = s.packets[delIdx]
		}
		info := infos[infosIdx]
		segGen := info.BufferedDeletesGen()

		switch {
		case packet != nil && segGen < packet.delGen:
			if !packet.segmentPrivate && packet.Any() {
				if coalesced == nil {
					coalesced = NewCoalesced()
				}
				coalesced.Update(packet)
			}
			delIdx--

		case packet != nil && segGen == packet.delGen:
			invariant(packet.segmentPrivate, "segment %s shares generation %d with a global packet", info.Name(), segGen)

			if err := applyToSegment(info, packet, coalesced, res); err != nil {
				return nil, err
			}
			delIdx--
			infosIdx--
			info.SetBufferedDeletesGen(gen)

		default:
			if coalesced != nil {
				if err := applyToSegment(info, nil, coalesced, res); err != nil {
					return nil, err
				}
			}
			info.SetBufferedDeletesGen(gen)
			infosIdx--
		}
	}

	s.logger.Debug("applied deletes",
		"gen", gen,
		"segments", len(infos),
		"packets", len(s.packets),
		"deleted", res.DeletedDocs,
		"updated", res.UpdatedDocs,
		"allDeleted", len(res.AllDeleted),
		"took", time.Since(start))
	return res, nil
}

func applyToSegment(seg Segment, private *Frozen, coalesced *Coalesced, res *ApplyResult) error {
	var deleted int
	if coalesced != nil {
		deleted += applyTermDeletes(coalesced.Terms(), seg)
		deleted += applyQueryDeletes(coalesced.Queries(), seg)
	}
	if private != nil {
		// Private term deletes were applied when the segment was flushed.
		deleted += private.ApplyQueryDeletes(seg)
	}

	// The private packet is older than every coalesced one, so its updates
	// go first and newer values overwrite them.
	dv := docvalues.NewContainer()
	var updated int
	if private != nil {
		n, err := applyDocValuesUpdates(slices.Values(private.numericUpdates), seg, dv)
		if err != nil {
			return err
		}
		updated += n
		if n, err = applyDocValuesUpdates(slices.Values(private.binaryUpdates), seg, dv); err != nil {
			return err
		}
		updated += n
	}
	if coalesced != nil {
		n, err := applyDocValuesUpdates(coalesced.NumericUpdates(), seg, dv)
		if err != nil {
			return err
		}
		updated += n
		if n, err = applyDocValuesUpdates(coalesced.BinaryUpdates(), seg, dv); err != nil {
			return err
		}
		updated += n
	}
	if dv.Any() {
		if err := seg.ApplyDocValuesUpdates(dv); err != nil {
			return fmt.Errorf("updates: segment %s: %w", seg.Name(), err)
		}
	}

	res.DeletedDocs += deleted
	res.UpdatedDocs += updated
	if deleted > 0 {
		res.AnyDeletes = true
	}
	if seg.NumDeleted() == seg.MaxDoc() {
		res.AllDeleted = append(res.AllDeleted, seg)
	}
	return nil
}

func applyTermDeletes(terms iter.Seq[model.Term], seg Segment) int {
	var n int
	for t := range terms {
		for doc := range seg.Docs(t) {
			if seg.Delete(doc) {
				n++
			}
		}
	}
	return n
}

func applyQueryDeletes(queries iter.Seq2[model.Query, int], seg Deleter) int {
	var n int
	for q, limit := range queries {
		for doc := range q.Docs(seg) {
			if doc >= limit {
				break
			}
			if seg.Delete(doc) {
				n++
			}
		}
	}
	return n
}

func applyDocValuesUpdates(updates iter.Seq[*DocValuesUpdate], seg Segment, dv *docvalues.Container) (int, error) {
	maxDoc := seg.MaxDoc()
	var n int
	for u := range updates {
		for doc := range seg.Docs(u.Term) {
			if doc >= u.DocIDUpto {
				break
			}
			if seg.IsDeleted(doc) {
				continue
			}
			if err := u.addTo(dv, doc, maxDoc); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// CoalescedSince returns the global packets with a generation above gen.
// Merges use it to carry updates that arrived while they ran.
func (s *Stream) CoalescedSince(gen int64) *Coalesced {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := NewCoalesced()
	for _, f := range s.packets {
		if f.delGen > gen && !f.segmentPrivate && f.Any() {
			c.Update(f)
		}
	}
	return c
}

// ApplyCoalesced applies c to seg without touching generations.
func ApplyCoalesced(c *Coalesced, seg Segment) (*ApplyResult, error) {
	res := &ApplyResult{}
	if c == nil || c.Len() == 0 {
		return res, nil
	}
	if err := applyToSegment(seg, nil, c, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Prune drops packets that every segment has already seen.
func (s *Stream) Prune(segments []Segment) {
	minGen := int64(math.MaxInt64)
	for _, seg := range segments {
		minGen = min(minGen, seg.BufferedDeletesGen())
	}
	s.PruneBelow(minGen)
}

// PruneBelow drops packets whose generation is below minGen.
func (s *Stream) PruneBelow(minGen int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.packets)
	for i, f := range s.packets {
		if f.delGen >= minGen {
			count = i
			break
		}
	}
	if count == 0 {
		return
	}

	for _, f := range s.packets[:count] {
		s.numTerms.Add(-f.numTermDeletes)
		s.bytesUsed.Add(-f.bytesUsed)
	}
	clear(s.packets[:count])
	s.packets = s.packets[count:]

	s.logger.Debug("pruned deletes", "packets", count, "remaining", len(s.packets), "minGen", minGen)
}
