package model

import (
	"cmp"
	"fmt"
)

// Term is a field name and the text of one indexed token.
type Term struct {
	Field string
	Text  string
}

// NewTerm returns the term field:text.
func NewTerm(field, text string) Term {
	return Term{Field: field, Text: text}
}

// Compare orders terms by field, then text.
func (t Term) Compare(o Term) int {
	if c := cmp.Compare(t.Field, o.Field); c != 0 {
		return c
	}
	return cmp.Compare(t.Text, o.Text)
}

// Size returns the number of bytes held by the term's strings.
func (t Term) Size() int {
	return len(t.Field) + len(t.Text)
}

// String returns field:text.
func (t Term) String() string {
	return t.Field + ":" + t.Text
}

// FieldType says how a field is indexed.
type FieldType uint8

const (
	// FieldText is analyzed into positioned tokens.
	FieldText FieldType = iota + 1
	// FieldKeyword is indexed as a single untokenized term.
	FieldKeyword
	// FieldNumeric is a numeric per-document value.
	FieldNumeric
	// FieldBinary is a byte-string per-document value.
	FieldBinary
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldKeyword:
		return "keyword"
	case FieldNumeric:
		return "numeric"
	case FieldBinary:
		return "binary"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// Field is one field of a document.
type Field struct {
	Name    string
	Type    FieldType
	Text    string
	Numeric int64
	Binary  []byte
}

// TextField returns an analyzed text field.
func TextField(name, text string) Field {
	return Field{Name: name, Type: FieldText, Text: text}
}

// KeywordField returns a field indexed as exactly one term.
func KeywordField(name, value string) Field {
	return Field{Name: name, Type: FieldKeyword, Text: value}
}

// NumericField returns a numeric per-document value.
func NumericField(name string, value int64) Field {
	return Field{Name: name, Type: FieldNumeric, Numeric: value}
}

// BinaryField returns a binary per-document value.
func BinaryField(name string, value []byte) Field {
	return Field{Name: name, Type: FieldBinary, Binary: value}
}

// Indexed reports whether the field produces postings.
func (f Field) Indexed() bool {
	return f.Type == FieldText || f.Type == FieldKeyword
}

// Document is an ordered list of fields.
type Document struct {
	Fields []Field
}

// NewDocument returns a document with the given fields.
func NewDocument(fields ...Field) Document {
	return Document{Fields: fields}
}

// Add appends a field and returns the document for chaining.
func (d Document) Add(f Field) Document {
	d.Fields = append(d.Fields, f)
	return d
}
