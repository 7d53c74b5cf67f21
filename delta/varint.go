package delta

// Varint-encodes and decodes the little-endian base-128 size fields
// that open every delta (source size, then target size): 7 data bits
// per byte, MSB=1 meaning "more bytes follow".

import "fmt"

const (
	continueBit  = 0x80
	payloadBits7 = 0x7f
)

// appendVarint appends the base-128 varint encoding of n to dst and
// returns the result.
func appendVarint(dst []byte, n uint64) []byte {
	for n >= continueBit {
		dst = append(dst, byte(n&payloadBits7)|continueBit)
		n >>= 7
	}
	return append(dst, byte(n))
}

// readVarint decodes a base-128 varint from the front of buf, returning
// the value and the remaining bytes. It returns an error if buf is
// exhausted before a terminating byte (high bit clear) is seen.
func readVarint(buf []byte) (uint64, []byte, error) {
	var n uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		n |= uint64(b&payloadBits7) << shift
		if b&continueBit == 0 {
			return n, buf[i+1:], nil
		}
		shift += 7
		if shift >= 64 {
			return 0, nil, fmt.Errorf("delta: varint overflow")
		}
	}
	return 0, nil, fmt.Errorf("delta: %w: truncated varint", ErrTruncatedDelta)
}
