// Package reader reads one feature type out of N independently sorted table
// cursors as a single ordered row stream.
//
// For each FeatureQuery the Reader
//
//  1. reads the meta cursor (pagination counters) and closes it, recovering
//     from any failure with a zero-valued meta row;
//  2. opens one value cursor per attributes container, in parallel;
//  3. merges the meta row and all value cursors lazily with the row ordering
//     law, pairwise, pulling only what the next output row needs.
//
// A value cursor failure fails the whole stream. Every cursor is closed when
// the stream ends, fails, or the consumer stops early.
//
// The compiled schema is shared read-only; each Read owns its cursors and
// rows exclusively, so no locking is needed.
package reader
