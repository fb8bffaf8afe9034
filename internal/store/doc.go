// Package store is the durable, append-only record of saved anchors.
//
// The store maps a 0-based ordinal index to an anchor identifier and an
// optional fallback coordinate, on top of any kv.Store. The persisted layout
// is a flat key family:
//
//	anchor_count              number of committed records
//	anchor_guid_{i}           canonical identifier text
//	anchor_fallback_x_{i}     optional fallback coordinate (x, y, z)
//	anchor_guid_low_{i}       legacy identifier halves (read only)
//	anchor_guid_high_{i}
//
// # Commit ordering
//
// Append writes the identifier, then the fallback fields, then advances
// anchor_count, then flushes. anchor_count is the committing write: a record
// whose counter advance never landed is beyond Count and therefore invisible,
// never half-visible. A failed Append leaves Count unchanged.
//
// Appends are serialized by the store; concurrent callers each get a
// distinct, contiguous index.
package store
