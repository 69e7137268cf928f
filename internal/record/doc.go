// Package record maps domain records to their stored envelopes and back.
//
// A stored record is the domain record plus a storage envelope: version,
// last-modified stamp, serialized size, compression flag, derived index
// fields (domain set, tab and event counts), and a content checksum. The
// checksum covers the semantic fields only; envelope metadata is excluded,
// so reserializing identical domain data is checksum-stable.
//
// Serialization runs in a fixed order:
//
//  1. optimization pass (lossy, low-value fields only)
//  2. checksum over the optimized semantic fields
//  3. hostname tokenization (reversible, payload shrink only)
//  4. JSON encoding, then gzip when it pays for itself
//
// Deserialization reverses the mapping and recomputes the checksum to
// detect drift. A mismatch is logged, never returned as an error: the
// corrupted record still reaches the caller for inspection, flagged
// Valid=false.
package record
