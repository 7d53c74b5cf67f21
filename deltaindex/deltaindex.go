// Package deltaindex builds a hash table over a source buffer so the
// delta encoder can find the longest matching run for any window of a
// target buffer in near-constant time.
//
// The index stores chains as a flat next[] slice of offsets rather than
// a linked list of heap nodes: one allocation for the whole index
// instead of one per chain entry, while still preserving insertion
// order within a bucket.
package deltaindex

import (
	"fmt"

	"github.com/gitdelta/packcore/rollinghash"
)

// MaxIndexBytes is the soft resource bound on the source buffers this
// package will index. Buffers larger than this fail construction with
// SourceTooLargeError; callers are expected to fall back to emitting
// the corresponding object as a full entry with no delta attempt.
const MaxIndexBytes = 100 << 20 // 100 MiB

// end marks the end of an intrusive offset chain. Valid offsets are
// always < end, since an index over more than 4G bytes is impossible
// under MaxIndexBytes.
const end = ^uint32(0)

// SourceTooLargeError is returned by New when the source buffer exceeds
// MaxIndexBytes.
type SourceTooLargeError struct {
	Size int
}

func (e *SourceTooLargeError) Error() string {
	return fmt.Sprintf("deltaindex: source too large to index: %d bytes (limit %d)", e.Size, MaxIndexBytes)
}

// Match is the result of a successful lookup: the source byte offset
// the window matched at, and how many bytes the match extends for.
type Match struct {
	SrcOffset uint32
	Length    uint32
}

// Index is an immutable mapping from rolling-hash value to the
// insertion-ordered chain of source offsets whose window hashes to that
// value. The zero value is not usable; build one with New.
type Index struct {
	source  []byte
	buckets map[uint32]uint32 // hash -> most recently inserted (largest) offset
	next    []uint32          // next[i] = next smaller offset with the same hash, or end
}

// New builds an index over source. An empty index (every lookup
// returns no match) is returned, without error, for buffers shorter
// than rollinghash.Window.
func New(source []byte) (*Index, error) {
	if len(source) > MaxIndexBytes {
		return nil, &SourceTooLargeError{Size: len(source)}
	}

	idx := &Index{source: source}
	if len(source) < rollinghash.Window {
		return idx, nil
	}

	last := len(source) - rollinghash.Window
	idx.buckets = make(map[uint32]uint32, last+1)
	idx.next = make([]uint32, last+1)

	for i := 0; i <= last; i++ {
		h, err := rollinghash.StaticHash(source, i)
		if err != nil {
			// unreachable given the loop bound, kept for defense in depth
			return nil, err
		}

		if head, ok := idx.buckets[h]; ok {
			idx.next[i] = head
		} else {
			idx.next[i] = end
		}
		idx.buckets[h] = uint32(i)
	}

	return idx, nil
}

// chain walks the bucket for hash h oldest-offset-last (insertion
// order is head = most-recently-inserted, i.e. largest offset, so we
// collect and reverse to present smallest-offset-first, giving ties
// the lowest source offset).
func (idx *Index) chain(h uint32) []uint32 {
	if idx.buckets == nil {
		return nil
	}
	head, ok := idx.buckets[h]
	if !ok {
		return nil
	}

	var offsets []uint32
	for o := head; o != end; o = idx.next[o] {
		offsets = append(offsets, o)
	}
	// head holds the most recently inserted offset; insertion order
	// (increasing offset) means we must reverse before returning.
	for l, r := 0, len(offsets)-1; l < r; l, r = l+1, r-1 {
		offsets[l], offsets[r] = offsets[r], offsets[l]
	}
	return offsets
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// FindMatch returns the longest match for the window starting at pos in
// target, or ok=false if no chain entry extends to at least
// rollinghash.Window bytes. Ties are broken by first-in-chain
// (equivalently, smallest source offset).
func (idx *Index) FindMatch(target []byte, pos int) (Match, bool) {
	if pos < 0 || pos+rollinghash.Window > len(target) {
		return Match{}, false
	}

	h, err := rollinghash.StaticHash(target, pos)
	if err != nil {
		return Match{}, false
	}

	var best Match
	found := false
	maxRemaining := len(idx.source)
	targetRemaining := len(target) - pos

	for _, o := range idx.chain(h) {
		srcRemaining := maxRemaining - int(o)
		bound := srcRemaining
		if targetRemaining < bound {
			bound = targetRemaining
		}
		length := commonPrefixLen(idx.source[o:int(o)+bound], target[pos:pos+bound])
		if length > int(best.Length) {
			best = Match{SrcOffset: o, Length: uint32(length)}
			found = true
		}
	}

	if !found || best.Length < rollinghash.Window {
		return Match{}, false
	}
	return best, true
}

// FindAllMatches returns every chain entry whose extended match length
// is at least rollinghash.Window, in chain (insertion) order.
func (idx *Index) FindAllMatches(target []byte, pos int) []Match {
	if pos < 0 || pos+rollinghash.Window > len(target) {
		return nil
	}

	h, err := rollinghash.StaticHash(target, pos)
	if err != nil {
		return nil
	}

	maxRemaining := len(idx.source)
	targetRemaining := len(target) - pos

	var matches []Match
	for _, o := range idx.chain(h) {
		srcRemaining := maxRemaining - int(o)
		bound := srcRemaining
		if targetRemaining < bound {
			bound = targetRemaining
		}
		length := commonPrefixLen(idx.source[o:int(o)+bound], target[pos:pos+bound])
		if length >= rollinghash.Window {
			matches = append(matches, Match{SrcOffset: o, Length: uint32(length)})
		}
	}
	return matches
}

// Len returns the number of indexed source offsets (0 for a source
// shorter than rollinghash.Window).
func (idx *Index) Len() int {
	return len(idx.next)
}
