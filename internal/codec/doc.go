// Package codec implements Zaku's self-describing binary payload format.
//
// Values are a tagged-variant interface (Value) rather than a reflection
// over Go's native generic containers: every Value already knows its own
// Kind and how to encode itself. Primitive
// kinds are null, bool, int64, float64, string, bytes, list, and a
// string-keyed map. Two extension kinds carry typed binary bodies:
// ndarray (dtype + shape + row-major data, for tensors) and image (format +
// data + optional shape, for images the wire never needs to decode).
//
// Encoding is a single tag byte followed by a kind-specific body; lengths
// are written as uvarints. Decoding a value and re-encoding it yields the
// same bytes, except that map key order is only guaranteed stable within a
// single encode/decode round trip (insertion order is preserved, not
// sorted).
package codec
