package packwriter

import (
	"github.com/gitdelta/packcore/packobj"
)

// Pack-level wire constants.
var signature = [4]byte{'P', 'A', 'C', 'K'}

const version = 2

// Type codes an entry header's bits 4-6 may carry.
const (
	typeCommit   = 1
	typeTree     = 2
	typeBlob     = 3
	typeTag      = 4
	typeOFSDelta = 6
)

func typeCode(k packobj.Kind) byte {
	switch k {
	case packobj.Commit:
		return typeCommit
	case packobj.Tree:
		return typeTree
	case packobj.Blob:
		return typeBlob
	case packobj.Tag:
		return typeTag
	default:
		return 0
	}
}

// appendEntryHeader appends the type-and-size header for an entry whose
// type is typ and whose uncompressed body is size bytes long: first
// byte holds the type in bits 4-6 and the low 4 bits of size; if size
// doesn't fit, the high bit is set and subsequent bytes each carry 7
// more size bits, LSB-first, with the continuation bit set on all but
// the last.
func appendEntryHeader(out []byte, typ byte, size uint64) []byte {
	c := byte(size&0x0f) | (typ << 4)
	size >>= 4
	for size != 0 {
		out = append(out, c|0x80)
		c = byte(size & 0x7f)
		size >>= 7
	}
	return append(out, c)
}

// appendOffsetBackRef appends the OFS_DELTA back-reference for a base
// located negativeOffset bytes before this entry's start, using Git's
// "big-endian 7-bit groups with a -1 carry on every non-terminal byte"
// encoding.
//
// This encoding is not a plain base-128 LEB varint: bytes are emitted
// most-significant-group-first, and every non-terminal byte has 1
// subtracted from the accumulated value before being packed, so that
// the decoder's `acc = ((acc + 1) << 7) | (b&0x7f)` for each byte that
// follows a non-terminal byte inverts it exactly. negativeOffset must be strictly positive (an
// entry can never reference itself or a later entry).
func appendOffsetBackRef(out []byte, negativeOffset uint64) []byte {
	// Collect 7-bit groups, LSB-group first, then reverse for
	// MSB-group-first emission, applying the -1 carry before each
	// group above the lowest is taken.
	var groups []byte
	groups = append(groups, byte(negativeOffset&0x7f))
	negativeOffset >>= 7
	for negativeOffset != 0 {
		negativeOffset--
		groups = append(groups, byte(negativeOffset&0x7f))
		negativeOffset >>= 7
	}

	for i := len(groups) - 1; i >= 0; i-- {
		b := groups[i]
		if i != 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
