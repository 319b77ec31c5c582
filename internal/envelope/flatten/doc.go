// Package flatten implements a cycle-tolerant, identity-preserving
// serializer for dynamic Go values (maps, slices, pointers, structs, and
// scalars), analogous to JavaScript's structured-clone / "flatted"
// encoding. encoding/json cannot represent a value graph containing
// cycles (it recurses until the stack overflows); encoding/gob can share
// pointers within a single Encode call but requires concrete registered
// types on both ends and has no portable flat-list wire format. Neither
// preserves object identity and tolerates cycles the way an envelope
// payload needs to, so this package exists to fill that gap; see
// DESIGN.md for the full standard-library justification.
//
// The wire format is a JSON object {"root": <index>, "table": [...]}:
// every map, slice, and pointer encountered during a walk is assigned a
// table index the first time it is seen; a later encounter of the same
// Go reference (by pointer identity) re-emits the same index instead of
// recursing again, which is what breaks infinite recursion on a cycle.
// Decoding reconstructs the table as containers first, in index order,
// then fills their contents in a second pass, so a container can
// reference its own index (or an as-yet-unfilled later index) exactly
// the way flatted's two-pass revival works.
package flatten
