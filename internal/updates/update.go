package updates

import (
	"fmt"

	"github.com/hupe1980/lexgo/internal/docvalues"
	"github.com/hupe1980/lexgo/model"
)

// DocValuesUpdate sets (or unsets) a doc-value field on every doc that
// contains Term.
type DocValuesUpdate struct {
	Kind    docvalues.Kind
	Term    model.Term
	Field   string
	Numeric int64
	Binary  []byte
	// Unset removes the value instead of setting it.
	Unset bool
	// DocIDUpto limits the update to docs below it in the packet's segment.
	DocIDUpto int
}

// NewNumericUpdate returns an update setting field to value.
func NewNumericUpdate(term model.Term, field string, value int64) *DocValuesUpdate {
	return &DocValuesUpdate{Kind: docvalues.Numeric, Term: term, Field: field, Numeric: value}
}

// NewBinaryUpdate returns an update setting field to value. A nil value
// unsets the field.
func NewBinaryUpdate(term model.Term, field string, value []byte) *DocValuesUpdate {
	return &DocValuesUpdate{Kind: docvalues.Binary, Term: term, Field: field, Binary: value, Unset: value == nil}
}

// NewUnsetUpdate returns an update removing field from matching docs.
func NewUnsetUpdate(kind docvalues.Kind, term model.Term, field string) *DocValuesUpdate {
	return &DocValuesUpdate{Kind: kind, Term: term, Field: field, Unset: true}
}

func (u *DocValuesUpdate) ramBytesUsed() int64 {
	return bytesPerDocValuesUpdate + int64(u.Term.Size()+len(u.Field)+len(u.Binary))
}

func (u *DocValuesUpdate) String() string {
	switch {
	case u.Unset:
		return fmt.Sprintf("%s %s=<unset> for %s upto %d", u.Kind, u.Field, u.Term, u.DocIDUpto)
	case u.Kind == docvalues.Numeric:
		return fmt.Sprintf("%s %s=%d for %s upto %d", u.Kind, u.Field, u.Numeric, u.Term, u.DocIDUpto)
	default:
		return fmt.Sprintf("%s %s=%q for %s upto %d", u.Kind, u.Field, u.Binary, u.Term, u.DocIDUpto)
	}
}

// addTo records the update for doc into c.
func (u *DocValuesUpdate) addTo(c *docvalues.Container, doc, maxDoc int) error {
	switch u.Kind {
	case docvalues.Numeric:
		f := c.Numeric(u.Field, maxDoc)
		if u.Unset {
			return f.AddUnset(doc)
		}
		return f.Add(doc, u.Numeric)
	case docvalues.Binary:
		f := c.Binary(u.Field, maxDoc)
		if u.Unset {
			return f.AddUnset(doc)
		}
		return f.Add(doc, u.Binary)
	default:
		return fmt.Errorf("updates: unknown doc-values kind %d", u.Kind)
	}
}
