package engine

import (
	"sync"

	"github.com/hupe1980/lexgo/internal/codec"
	"github.com/hupe1980/lexgo/model"
)

// fieldKind groups field types that may share a name: text and keyword
// fields both produce postings.
func fieldKind(t model.FieldType) model.FieldType {
	if t == model.FieldKeyword {
		return model.FieldText
	}
	return t
}

// fieldTypes remembers the type each field name was first used with.
type fieldTypes struct {
	mu    sync.RWMutex
	types map[string]model.FieldType
}

func newFieldTypes() *fieldTypes {
	return &fieldTypes{types: make(map[string]model.FieldType)}
}

// check validates every field of doc and registers the new ones. Nothing is
// registered when a field conflicts.
func (f *fieldTypes) check(doc model.Document) error {
	f.mu.RLock()
	fresh := false
	for _, field := range doc.Fields {
		have, ok := f.types[field.Name]
		if !ok {
			fresh = true
			continue
		}
		if fieldKind(have) != fieldKind(field.Type) {
			f.mu.RUnlock()
			return &FieldTypeError{Field: field.Name, Have: have, Want: field.Type}
		}
	}
	f.mu.RUnlock()
	if !fresh {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[string]model.FieldType, len(doc.Fields))
	for _, field := range doc.Fields {
		have, ok := f.types[field.Name]
		if !ok {
			have, ok = seen[field.Name]
		}
		if ok && fieldKind(have) != fieldKind(field.Type) {
			return &FieldTypeError{Field: field.Name, Have: have, Want: field.Type}
		}
		if !ok {
			seen[field.Name] = field.Type
		}
	}
	for name, t := range seen {
		f.types[name] = t
	}
	return nil
}

// checkOne validates a single field name and type, registering it if new.
func (f *fieldTypes) checkOne(name string, t model.FieldType) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if have, ok := f.types[name]; ok {
		if fieldKind(have) != fieldKind(t) {
			return &FieldTypeError{Field: name, Have: have, Want: t}
		}
		return nil
	}
	f.types[name] = t
	return nil
}

// lookup returns the type field was registered with.
func (f *fieldTypes) lookup(name string) (model.FieldType, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	t, ok := f.types[name]
	return t, ok
}

// load registers the fields of a segment read from storage.
func (f *fieldTypes) load(s *codec.Segment) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, name := range s.Fields() {
		if _, ok := f.types[name]; !ok {
			f.types[name] = model.FieldText
		}
	}
	for _, name := range s.NumericFields() {
		if _, ok := f.types[name]; !ok {
			f.types[name] = model.FieldNumeric
		}
	}
	for _, name := range s.BinaryFields() {
		if _, ok := f.types[name]; !ok {
			f.types[name] = model.FieldBinary
		}
	}
}
