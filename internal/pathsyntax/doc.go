// Package pathsyntax parses annotated source paths.
//
// An annotated path maps a feature property onto relational tables and
// columns:
//
//	/parcels/[id=parcel_id]addresses/street:city{queryable=street}
//	 ^table   ^join condition        ^columns  ^flags
//
// Grammar:
//
//	path      = ('/' segment)+ '/' column (':' column)* flags?
//	segment   = joinCondition? identifier tableFlag*
//	joinCond  = '[' sourceColumn '=' targetColumn ']'
//	flags     = ('{' flag '}')*     oid | spatial | priority=<int> | queryable=<name>
//	tableFlag = '{' sortKey=<column> '}' | '{' primaryKey=<column> '}'
//
// Every function here is pure. Syntax options (junction table pattern, default
// primary key) travel in an explicit, immutable SyntaxConfig value; there are
// no package-level pattern tables.
//
// Parsing is intentionally permissive: a path without a recognizable trailing
// column segment yields ok=false rather than an error, and an unrecognized
// table segment is skipped. Callers decide whether to log.
package pathsyntax
