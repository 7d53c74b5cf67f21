// Package packwriter assembles a Git pack-v2 byte stream from a list of
// objects: it orders them per heuristics.Order, greedily selects a
// delta base for each one from a bounded sliding window, and emits
// either a deflated full object or an OFS_DELTA entry, followed by a
// trailing content hash over every byte written.
package packwriter

import (
	"fmt"
	"io"

	"github.com/gitdelta/packcore/delta"
	"github.com/gitdelta/packcore/deltaindex"
	"github.com/gitdelta/packcore/heuristics"
	"github.com/gitdelta/packcore/internal/trace"
	"github.com/gitdelta/packcore/packobj"
)

// Deflate compresses bytes. Errors bubble up unchanged, wrapped in
// ErrCompressionFailed by the writer.
type Deflate func([]byte) ([]byte, error)

// Hasher is a streaming content-hash abstraction (SHA-1 in the pack
// format this package emits).
type Hasher interface {
	Update(p []byte)
	Finalize() [20]byte
}

// Stats summarizes one Encode call: how many objects were written in
// full versus as deltas, and the resulting byte counts.
type Stats struct {
	Entries      int
	FullEntries  int
	DeltaEntries int
	BytesWritten int64
}

// countingWriter wraps an io.Writer to track the absolute byte offset
// written so far.
type countingWriter struct {
	w      io.Writer
	offset int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.offset += int64(n)
	return n, err
}

// Encode writes a full pack to w: header, one entry per object in
// objects (which need not already be ordered — Encode orders them
// internally per heuristics.Order), and a trailing hash.
//
// deflate compresses every object body (full or delta) before it is
// written; hasher accumulates every byte Encode writes to w and
// Finalize()'s result becomes the trailer. Either collaborator's error
// aborts the call before any partial entry is written to w.
func Encode(w io.Writer, objects []*packobj.Record, deflate Deflate, hasher Hasher, opts ...Option) (Stats, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	ordered := heuristics.Order(objects)

	decide := func(i int, offsets map[packobj.OID]int64) (*packobj.Record, []byte, bool) {
		base, deltaBytes, _, ok := selectBase(ordered, i, ordered[i], offsets, o)
		return base, deltaBytes, ok
	}

	return emit(w, ordered, decide, deflate, hasher)
}

// emit performs the strictly sequential part of pack assembly shared by
// Encode and EncodeConcurrent: header, one entry per object in ordered
// (consulting decide for each one's base, which may itself have been
// computed concurrently ahead of time), and the trailing hash. decide
// is only ever asked about indices whose window candidates have
// already been assigned an offset, so it never needs offsets for an
// index >= i.
func emit(
	w io.Writer,
	ordered []*packobj.Record,
	decide func(i int, offsets map[packobj.OID]int64) (base *packobj.Record, deltaBytes []byte, ok bool),
	deflate Deflate,
	hasher Hasher,
) (Stats, error) {
	var stats Stats
	stats.Entries = len(ordered)

	hw := &hashingBuf{hasher: hasher}
	cw := &countingWriter{w: io.MultiWriter(w, hw)}

	offsets := make(map[packobj.OID]int64, len(ordered))

	if err := writeHeader(cw, len(ordered)); err != nil {
		return stats, err
	}
	trace.Pack.Printf("header written: %d entries", len(ordered))

	for i, target := range ordered {
		entryStart := cw.offset

		base, deltaBytes, baseOK := decide(i, offsets)

		var typ byte
		var headerExtra []byte
		var uncompressed []byte

		if baseOK {
			baseOffset, known := offsets[base.OID]
			if !known {
				return stats, fmt.Errorf("packwriter: internal error: base %s has no recorded offset", base.OID)
			}

			typ = typeOFSDelta
			headerExtra = appendOffsetBackRef(nil, uint64(entryStart-baseOffset))
			uncompressed = deltaBytes
			target.Depth = base.Depth + 1
			stats.DeltaEntries++
			trace.Delta.Printf("accepted delta: target=%s base=%s deltaLen=%d depth=%d",
				target.OID, base.OID, len(deltaBytes), target.Depth)
		} else {
			typ = typeCode(target.Kind)
			uncompressed = target.Payload
			target.Depth = 0
			stats.FullEntries++
		}

		compressed, err := deflate(uncompressed)
		if err != nil {
			return stats, fmt.Errorf("%w: %w", ErrCompressionFailed, err)
		}

		header := appendEntryHeader(nil, typ, uint64(len(uncompressed)))
		header = append(header, headerExtra...)

		if _, err := cw.Write(header); err != nil {
			return stats, err
		}
		if _, err := cw.Write(compressed); err != nil {
			return stats, err
		}

		offsets[target.OID] = entryStart
	}

	trailer := hasher.Finalize()
	if _, err := cw.Write(trailer[:]); err != nil {
		return stats, err
	}
	trace.Pack.Printf("trailer written: %d bytes total", cw.offset)

	stats.BytesWritten = cw.offset
	return stats, nil
}

func writeHeader(cw *countingWriter, count int) error {
	header := make([]byte, 0, 12)
	header = append(header, signature[:]...)
	header = appendUint32(header, version)
	header = appendUint32(header, uint64(count))
	_, err := cw.Write(header)
	return err
}

func appendUint32(dst []byte, v uint64) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// selectBase runs heuristics.FindBest over the preceding o.windowSize entries,
// attempts an encode against the winner, and applies the accept
// policy. It returns ok=false if no admissible candidate exists, or the
// produced delta was rejected — in which case target must be emitted
// as a full entry.
func selectBase(
	ordered []*packobj.Record,
	i int,
	target *packobj.Record,
	offsets map[packobj.OID]int64,
	o Options,
) (base *packobj.Record, deltaBytes []byte, baseOffset int64, ok bool) {
	if len(target.Payload) < o.minSizeForDelta {
		return nil, nil, 0, false
	}

	winStart := i - o.windowSize
	if winStart < 0 {
		winStart = 0
	}
	window := ordered[winStart:i]

	candidate, found := heuristics.FindBest(target, window, o.maxDeltaChainDepth)
	if !found {
		return nil, nil, 0, false
	}

	off, known := offsets[candidate.Record.OID]
	if !known {
		return nil, nil, 0, false
	}

	d, err := delta.Encode(candidate.Record.Payload, target.Payload)
	if err != nil {
		if _, tooLarge := err.(*deltaindex.SourceTooLargeError); tooLarge {
			return nil, nil, 0, false
		}
		return nil, nil, 0, false
	}

	if !heuristics.AcceptDelta(len(d), len(candidate.Record.Payload), len(target.Payload)) {
		return nil, nil, 0, false
	}

	return candidate.Record, d, off, true
}

// hashingBuf adapts a Hasher to io.Writer so it can participate in an
// io.MultiWriter alongside the real output.
type hashingBuf struct {
	hasher Hasher
}

func (h *hashingBuf) Write(p []byte) (int, error) {
	h.hasher.Update(p)
	return len(p), nil
}
