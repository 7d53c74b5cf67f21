package packwriter

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/gitdelta/packcore/delta"
	"github.com/gitdelta/packcore/deltaindex"
	"github.com/gitdelta/packcore/heuristics"
	"github.com/gitdelta/packcore/packobj"
)

// precomputed caches the outcome of a base-selection attempt for one
// object, so the strictly sequential emit pass never has to run
// FindBest/delta.Encode itself.
type precomputed struct {
	base *packobj.Record
	d    []byte
	ok   bool
}

// EncodeConcurrent writes a pack the same way Encode does, but
// precomputes delta candidates chunkwise with a bounded worker pool:
// within a chunk of windowSize objects, every object's candidate window
// is restricted to objects from strictly earlier chunks, so every
// goroutine in a chunk can run concurrently without depending on a
// sibling's in-flight result. Because of that restriction it can choose
// different bases than Encode for the same input. Final emission — offset bookkeeping, entry writes, and the
// running hash — stays strictly sequential regardless of how much of
// the precompute ran in parallel.
func EncodeConcurrent(ctx context.Context, w io.Writer, objects []*packobj.Record, deflate Deflate, hasher Hasher, opts ...Option) (Stats, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	ordered := heuristics.Order(objects)

	chunk := o.windowSize
	if chunk < 1 {
		chunk = 1
	}

	pre := make([]precomputed, len(ordered))

	for chunkStart := 0; chunkStart < len(ordered); chunkStart += chunk {
		chunkEnd := chunkStart + chunk
		if chunkEnd > len(ordered) {
			chunkEnd = len(ordered)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.concurrency)

		for i := chunkStart; i < chunkEnd; i++ {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				pre[i] = precomputeCandidate(ordered, i, chunkStart, o)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return Stats{}, err
		}

		// Record each object's chain depth before a later chunk's
		// precompute reads it through FindBest.
		for i := chunkStart; i < chunkEnd; i++ {
			if pre[i].ok {
				ordered[i].Depth = pre[i].base.Depth + 1
			} else {
				ordered[i].Depth = 0
			}
		}
	}

	decide := func(i int, _ map[packobj.OID]int64) (*packobj.Record, []byte, bool) {
		p := pre[i]
		return p.base, p.d, p.ok
	}

	return emit(w, ordered, decide, deflate, hasher)
}

// precomputeCandidate runs FindBest and an attempted encode for
// ordered[i], restricting candidates to the window intersected with
// indices strictly before chunkStart, so the result never depends on
// an object precomputed concurrently in the same chunk.
func precomputeCandidate(ordered []*packobj.Record, i, chunkStart int, o Options) precomputed {
	target := ordered[i]
	if len(target.Payload) < o.minSizeForDelta {
		return precomputed{}
	}

	winStart := i - o.windowSize
	if winStart < 0 {
		winStart = 0
	}

	var candidates []*packobj.Record
	for j := winStart; j < i && j < chunkStart; j++ {
		candidates = append(candidates, ordered[j])
	}
	if len(candidates) == 0 {
		return precomputed{}
	}

	best, found := heuristics.FindBest(target, candidates, o.maxDeltaChainDepth)
	if !found {
		return precomputed{}
	}

	d, err := delta.Encode(best.Record.Payload, target.Payload)
	if err != nil {
		if _, tooLarge := err.(*deltaindex.SourceTooLargeError); tooLarge {
			return precomputed{}
		}
		return precomputed{}
	}

	if !heuristics.AcceptDelta(len(d), len(best.Record.Payload), len(target.Payload)) {
		return precomputed{}
	}

	return precomputed{base: best.Record, d: d, ok: true}
}
