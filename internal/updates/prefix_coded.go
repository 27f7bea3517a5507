package updates

import (
	"encoding/binary"
	"iter"

	"github.com/hupe1980/lexgo/model"
)

// PrefixCodedTerms is an immutable, sorted, prefix-compressed list of terms.
//
// Each entry is a uvarint code prefix<<1|fieldChanged, followed by the field
// (uvarint length plus bytes) when it changed, then the suffix (uvarint
// length plus bytes). The prefix is shared with the previous term's text.
type PrefixCodedTerms struct {
	buf  []byte
	size int
}

// Len returns the number of terms.
func (p *PrefixCodedTerms) Len() int { return p.size }

// RAMBytesUsed returns the size of the encoded buffer.
func (p *PrefixCodedTerms) RAMBytesUsed() int64 { return int64(cap(p.buf)) + 32 }

// Iterator returns a cursor positioned before the first term.
func (p *PrefixCodedTerms) Iterator() *TermIterator {
	return &TermIterator{buf: p.buf}
}

// All yields the terms in sorted order.
func (p *PrefixCodedTerms) All() iter.Seq[model.Term] {
	return func(yield func(model.Term) bool) {
		it := p.Iterator()
		for it.Next() {
			if !yield(it.Term()) {
				return
			}
		}
	}
}

// TermIterator decodes a PrefixCodedTerms.
type TermIterator struct {
	buf   []byte
	pos   int
	field string
	text  []byte
	term  model.Term
}

// Next advances to the next term and reports whether one exists.
func (it *TermIterator) Next() bool {
	if it.pos >= len(it.buf) {
		return false
	}
	code := it.uvarint()
	if code&1 != 0 {
		n := int(it.uvarint())
		it.field = string(it.buf[it.pos : it.pos+n])
		it.pos += n
	}
	prefix := int(code >> 1)
	n := int(it.uvarint())
	it.text = append(it.text[:prefix], it.buf[it.pos:it.pos+n]...)
	it.pos += n
	it.term = model.Term{Field: it.field, Text: string(it.text)}
	return true
}

// Term returns the current term.
func (it *TermIterator) Term() model.Term { return it.term }

func (it *TermIterator) uvarint() uint64 {
	v, n := binary.Uvarint(it.buf[it.pos:])
	it.pos += n
	return v
}

// prefixCodedBuilder appends terms in strictly increasing order.
type prefixCodedBuilder struct {
	buf  []byte
	last model.Term
	size int
}

func (b *prefixCodedBuilder) add(t model.Term) {
	invariant(b.size == 0 || b.last.Compare(t) < 0, "terms out of order: %s after %s", t, b.last)

	prefix := sharedPrefix(b.last.Text, t.Text)
	fieldChanged := b.size == 0 || t.Field != b.last.Field

	code := uint64(prefix) << 1
	if fieldChanged {
		code |= 1
	}
	b.buf = binary.AppendUvarint(b.buf, code)
	if fieldChanged {
		b.buf = binary.AppendUvarint(b.buf, uint64(len(t.Field)))
		b.buf = append(b.buf, t.Field...)
	}
	suffix := t.Text[prefix:]
	b.buf = binary.AppendUvarint(b.buf, uint64(len(suffix)))
	b.buf = append(b.buf, suffix...)

	b.last = t
	b.size++
}

func (b *prefixCodedBuilder) finish() *PrefixCodedTerms {
	return &PrefixCodedTerms{buf: b.buf, size: b.size}
}

func sharedPrefix(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
