// Package schema builds the attribute table of a fixed-layout record.
//
// The table is derived once, by reflection, from a Go struct whose exported
// fields carry an `attr:"name"` tag. Each attribute is addressed by its byte
// offset inside the record; Resolve maps a name to its descriptor and
// ResolveByOffset maps an offset back, which is how change notifications that
// only carry an offset are decoded.
//
// Supported field types:
//
//	int32, int64  Integer (native endian)
//	[N]byte       Text (bounded, nul terminated, capacity N-1)
//
// Fields tagged `attr:"-"` (or untagged) are part of the layout but are not attributes.
package schema
