// SPDX-License-Identifier: MIT

// Package sniff inspects the leading bytes of a video buffer for a known
// container signature, so obviously broken input is rejected before any
// encoder process is spawned.
package sniff

const (
	// Offset of the box-type marker inside an ISO BMFF container: the
	// first four bytes are the box size, the next four its type.
	Offset = 4

	// Marker is the box type every supported container opens with.
	Marker = "ftyp"

	// MinLen is the smallest prefix Signature needs to inspect the
	// marker window (size + type + major brand).
	MinLen = 12
)

// Signature returns the box-type window of data and whether it matches
// Marker. Buffers shorter than MinLen never match; the truncated window
// is returned so errors can name what was actually received.
func Signature(data []byte) (got string, ok bool) {
	if len(data) < MinLen {
		if len(data) > Offset {
			return string(data[Offset:]), false
		}
		return "", false
	}
	got = string(data[Offset : Offset+len(Marker)])
	return got, got == Marker
}
