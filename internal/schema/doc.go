// Package schema compiles a feature type's annotated paths into a table tree.
//
// Compile runs once per feature type at startup. It parses every path, sorts
// the entries by priority, merges entries addressing the same table, fans out
// implicit intermediate tables, links parents by longest segment prefix and
// classifies each node:
//
//	MAIN          a column is flagged {oid} (or marked as identity)
//	MERGED        the root without identity, or a [id=id] self join under MAIN/MERGED
//	ONE_TO_MANY   one hop through a junction table, or a join from the parent's key
//	MANY_TO_MANY  a junction table followed by further hops
//	ONE_TO_ONE    everything else
//
// The result is an InstanceContainer: one AttributesContainer per node, in the
// priority order used as the final tie-break when merging rows. Compiled values
// are immutable and shared across concurrent queries.
package schema
