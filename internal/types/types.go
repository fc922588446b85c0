// Package types holds the small identifier types shared across the
// training pipeline so that packages don't depend on each other just to
// share an int alias.
package types

// DocID identifies a document by its position in the corpus index's
// item list. Stable for the lifetime of a single run.
type DocID int32

// LangID identifies a language class. Dense, zero-based, assigned in
// first-seen order and renumbered after min-domain pruning.
type LangID int32

// DomainID identifies a domain (nuisance variable). Dense, zero-based,
// never pruned.
type DomainID int32

// FeatureIndex is the position of a feature in the final ordered
// feature list. The only feature identifier used after scanner
// compilation.
type FeatureIndex int32

// Document is an indexed corpus entry. Immutable after indexing.
type Document struct {
	Domain DomainID
	Lang   LangID
	Name   string
	Path   string
}
