// Package harness runs merge scenarios: a feature type, fixture tables, one
// feature query, and assertions on the merged row stream.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: parcels_first_page
//	description: "First page of parcels with their addresses"
//	type: parcels
//	paths:
//	  - /parcels/id{oid}
//	  - path: /parcels/name{queryable=title}
//	    priority: 1
//	  - /parcels/[id=parcel_id]addresses/street
//	schema:
//	  - CREATE TABLE parcels (id INTEGER PRIMARY KEY, name TEXT)
//	data:
//	  - table: parcels
//	    rows:
//	      - {id: 1, name: Lot A}
//	query:
//	  limit: 2
//	  number_matched: true
//	assertions:
//	  - type: rows
//	    rows: [meta, "parcels[1]"]
//
// Instead of inline paths, a scenario may name a directory of CUE feature
// types with feature_types; the type field then selects one of them.
//
// # Assertion Types
//
//   - rows: the complete sequence of row labels
//   - row_order: labels appear in this order, other rows may intervene
//   - row_count: number of rows of one container
//   - row_values: attribute values of one row
//   - meta: counters of the meta row
//   - read_error: the read fails with the given error code
//
// # Deterministic Testing
//
// Every scenario runs against a fresh SQLite file with a fixed execution id,
// so traces are identical across runs and can be compared with golden files:
//
//	go test ./internal/harness -update
package harness
