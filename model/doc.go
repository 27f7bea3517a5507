// Package model defines the types callers hand to the index writer.
//
// # Terms
//
// A Term is a (field, text) pair. Terms order by field, then by the UTF-8
// bytes of the text.
//
// # Documents
//
// A Document is a list of fields:
//
//	doc := model.NewDocument(
//	    model.KeywordField("id", "42"),
//	    model.TextField("body", "the quick brown fox"),
//	    model.NumericField("price", 1299),
//	)
//
// Text fields are analyzed into tokens, keyword fields are indexed as one
// term, and numeric/binary fields are per-document values that can later be
// changed in place with doc-value updates.
//
// # Queries
//
// Delete-by-query takes any Query. Queries only need to enumerate matching
// doc IDs of a segment; scoring is not part of this module.
package model
