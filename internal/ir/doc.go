// Package ir provides the foundational value types shared by every other
// internal package of featurestream.
//
// This package imports nothing internal. It contains:
//   - Value: a sealed tagged union for sort-key values (null, int, string, time)
//   - Compare: the typed comparison used by the row ordering law
//   - MarshalCanonical / Fingerprint: canonical JSON and content hashing used to
//     prove that compiled table trees are deterministic
//
// Key design constraints:
//   - Sort-key values are never compared through reflection or narrowing casts;
//     two values of different kinds at the same key position are a configuration
//     error, reported as *KindMismatchError
//   - Null sorts strictly before every non-null value
//   - No float sort keys: floating point columns are not valid identities
package ir
