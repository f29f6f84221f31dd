// Package query defines the query IR exchanged between the reader and cursor
// providers.
//
// A caller asks for features with a FeatureQuery. The reader expands it into
// one MetaQuery (pagination counters for the page) and one ValueQuery per
// attributes container. Providers turn those into whatever their backend
// needs; the only contract is that every value cursor yields records sorted
// by the query's SortKeys.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods. Only types in this
// package implement them, so providers can switch exhaustively:
//
//	switch q := q.(type) {
//	case MetaQuery:
//	    // aggregate counters
//	case ValueQuery:
//	    // ordered rows of one container
//	}
//
// Predicates are the portable filter fragment: Equals and And. In a
// FeatureQuery, Equals.Field names a queryable; in the expanded queries it
// names a column of the main table.
package query
