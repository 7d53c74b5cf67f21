// Package delta implements the greedy COPY/INSERT delta encoder and its
// inverse applier, in Git's exact on-disk delta format: a pair of
// varint sizes followed by a stream of bit-packed instructions.
//
// The encoder walks the target with a rolling-hash index, taking the
// longest available match as a COPY and buffering everything else into
// INSERT runs; the COPY/INSERT bit layout matches Git's wire format
// exactly so the output is consumable by any conforming implementation.
package delta

import (
	"fmt"
	"math"

	"github.com/gitdelta/packcore/deltaindex"
	"github.com/gitdelta/packcore/rollinghash"
)

const (
	// MinCopyLen is the shortest match the encoder will ever emit as a
	// COPY; it equals the index's window size so that a COPY is never
	// worse, byte-for-byte, than the INSERT it would otherwise require.
	MinCopyLen = rollinghash.Window

	// MaxInsertLen is the largest literal run a single INSERT
	// instruction may carry; longer runs are split across multiple
	// instructions.
	MaxInsertLen = 127

	// maxCopyLen is the largest length a single COPY instruction can
	// address (a zero length field means 0x10000, per the wire format).
	maxCopyLen = 0x10000
)

// Encode produces the delta that transforms source into target, using a
// greedy walk over an index built from source: at each position, take
// the longest available Window-or-longer match as a COPY, otherwise
// buffer literal bytes into INSERT instructions up to MaxInsertLen.
//
// Both source and target must fit in 32 bits; larger buffers return
// ErrInvalidInput.
func Encode(source, target []byte) ([]byte, error) {
	if len(source) > math.MaxUint32 || len(target) > math.MaxUint32 {
		return nil, ErrInvalidInput
	}

	idx, err := deltaindex.New(source)
	if err != nil {
		// A too-large source is a policy decision for callers (skip
		// the delta attempt), not an encoding failure; propagate as-is
		// so the caller can distinguish it from a genuine encode bug.
		return nil, err
	}

	out := make([]byte, 0, len(target)/2+32)
	out = appendVarint(out, uint64(len(source)))
	out = appendVarint(out, uint64(len(target)))

	pos := 0
	for pos < len(target) {
		m, ok := idx.FindMatch(target, pos)
		if ok && int(m.Length) >= MinCopyLen {
			out = appendCopy(out, int(m.SrcOffset), int(m.Length))
			pos += int(m.Length)
			continue
		}

		start := pos
		end := pos + 1
		for end < len(target) && end-start < MaxInsertLen {
			if _, ok := idx.FindMatch(target, end); ok {
				break
			}
			end++
		}
		out = appendInsert(out, target[start:end])
		pos = end
	}

	return out, nil
}

// appendCopy encodes a single COPY instruction, splitting length across
// multiple instructions if it exceeds maxCopyLen.
func appendCopy(out []byte, offset, length int) []byte {
	for length > 0 {
		n := length
		if n > maxCopyLen {
			n = maxCopyLen
		}
		out = append(out, encodeCopyOp(offset, n)...)
		offset += n
		length -= n
	}
	return out
}

// encodeCopyOp encodes one COPY instruction for a length in
// [1, maxCopyLen]. A length of exactly maxCopyLen is encoded by
// clearing all length bits (the applier substitutes maxCopyLen when it
// sees a zero-length field).
func encodeCopyOp(offset, length int) []byte {
	code := byte(0x80)
	var extra []byte

	if offset&0xff != 0 {
		extra = append(extra, byte(offset))
		code |= 0x01
	}
	if offset&0xff00 != 0 {
		extra = append(extra, byte(offset>>8))
		code |= 0x02
	}
	if offset&0xff0000 != 0 {
		extra = append(extra, byte(offset>>16))
		code |= 0x04
	}
	if offset&0xff000000 != 0 {
		extra = append(extra, byte(offset>>24))
		code |= 0x08
	}

	encLen := length
	if encLen == maxCopyLen {
		encLen = 0
	}
	if encLen&0xff != 0 {
		extra = append(extra, byte(encLen))
		code |= 0x10
	}
	if encLen&0xff00 != 0 {
		extra = append(extra, byte(encLen>>8))
		code |= 0x20
	}
	if encLen&0xff0000 != 0 {
		extra = append(extra, byte(encLen>>16))
		code |= 0x40
	}

	return append([]byte{code}, extra...)
}

// appendInsert encodes one or more INSERT instructions carrying bytes,
// splitting at MaxInsertLen.
func appendInsert(out []byte, bytes []byte) []byte {
	for len(bytes) > 0 {
		n := len(bytes)
		if n > MaxInsertLen {
			n = MaxInsertLen
		}
		out = append(out, byte(n))
		out = append(out, bytes[:n]...)
		bytes = bytes[n:]
	}
	return out
}

// Stats summarizes an encode pass without requiring the caller to
// serialize a delta.
type Stats struct {
	SourceSize         int
	TargetSize         int
	CopyBytes          int
	InsertBytes        int
	CopyInstructions   int
	InsertInstructions int
	TotalInstructions  int
	CompressionRatio   float64
}

// Analyze runs the same greedy walk Encode does, but accumulates
// statistics instead of serializing instructions.
func Analyze(source, target []byte) (Stats, error) {
	idx, err := deltaindex.New(source)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{SourceSize: len(source), TargetSize: len(target)}

	pos := 0
	for pos < len(target) {
		m, ok := idx.FindMatch(target, pos)
		if ok && int(m.Length) >= MinCopyLen {
			s.CopyBytes += int(m.Length)
			s.CopyInstructions++
			pos += int(m.Length)
			continue
		}

		start := pos
		end := pos + 1
		for end < len(target) && end-start < MaxInsertLen {
			if _, ok := idx.FindMatch(target, end); ok {
				break
			}
			end++
		}
		s.InsertBytes += end - start
		s.InsertInstructions++
		pos = end
	}

	s.TotalInstructions = s.CopyInstructions + s.InsertInstructions
	denom := s.TargetSize
	if denom < 1 {
		denom = 1
	}
	s.CompressionRatio = float64(s.CopyBytes) / float64(denom)

	return s, nil
}

// String renders a human-readable one-line summary of s.
func (s Stats) String() string {
	return fmt.Sprintf(
		"delta %d->%d bytes: %d copy (%d instr), %d insert (%d instr), ratio=%.2f",
		s.SourceSize, s.TargetSize, s.CopyBytes, s.CopyInstructions,
		s.InsertBytes, s.InsertInstructions, s.CompressionRatio,
	)
}
