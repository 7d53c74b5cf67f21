package delta

import "fmt"

// gate pairs a COPY opcode bit with the byte shift it gates, so the
// offset/length fields can be decoded by walking a table instead of
// four duplicated if-statements.
type gate struct {
	mask  byte
	shift uint
}

var offsetGates = []gate{
	{mask: 0x01, shift: 0},
	{mask: 0x02, shift: 8},
	{mask: 0x04, shift: 16},
	{mask: 0x08, shift: 24},
}

var sizeGates = []gate{
	{mask: 0x10, shift: 0},
	{mask: 0x20, shift: 8},
	{mask: 0x40, shift: 16},
}

func isCopy(cmd byte) bool {
	return cmd&0x80 != 0
}

// Apply reconstructs the target buffer that delta encodes against
// source. It returns ErrSourceMismatch if the delta's declared source
// size disagrees with len(source), ErrInvalidOpcode on a zero code
// byte, and ErrTruncatedDelta / ErrExtraData if the instruction stream
// produces a different number of bytes than the declared target size.
func Apply(source, delta []byte) ([]byte, error) {
	srcSize, rest, err := readVarint(delta)
	if err != nil {
		return nil, err
	}
	if int(srcSize) != len(source) {
		return nil, fmt.Errorf("%w: delta declares source size %d, got %d", ErrSourceMismatch, srcSize, len(source))
	}

	targetSize, rest, err := readVarint(rest)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, targetSize)

	for len(out) < int(targetSize) {
		if len(rest) == 0 {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrTruncatedDelta, targetSize, len(out))
		}

		cmd := rest[0]
		rest = rest[1:]

		switch {
		case isCopy(cmd):
			var srcOffset, length uint32
			for _, g := range offsetGates {
				if cmd&g.mask == 0 {
					continue
				}
				if len(rest) == 0 {
					return nil, fmt.Errorf("%w: truncated copy offset", ErrTruncatedDelta)
				}
				srcOffset |= uint32(rest[0]) << g.shift
				rest = rest[1:]
			}
			for _, g := range sizeGates {
				if cmd&g.mask == 0 {
					continue
				}
				if len(rest) == 0 {
					return nil, fmt.Errorf("%w: truncated copy length", ErrTruncatedDelta)
				}
				length |= uint32(rest[0]) << g.shift
				rest = rest[1:]
			}
			if length == 0 {
				length = maxCopyLen
			}

			if uint64(srcOffset)+uint64(length) > srcSize {
				return nil, fmt.Errorf("%w: copy [%d, %d) exceeds source size %d", ErrInvalidInput, srcOffset, uint64(srcOffset)+uint64(length), srcSize)
			}
			out = append(out, source[srcOffset:uint64(srcOffset)+uint64(length)]...)

		case cmd != 0:
			n := int(cmd & 0x7f)
			if len(rest) < n {
				return nil, fmt.Errorf("%w: expected %d insert bytes, got %d", ErrTruncatedDelta, n, len(rest))
			}
			out = append(out, rest[:n]...)
			rest = rest[n:]

		default:
			return nil, ErrInvalidOpcode
		}
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrExtraData, len(rest))
	}
	if len(out) != int(targetSize) {
		return nil, fmt.Errorf("%w: produced %d bytes, expected %d", ErrExtraData, len(out), targetSize)
	}

	return out, nil
}
