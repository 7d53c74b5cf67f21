// Package heuristics implements the base-selection and ordering policy
// the pack writer uses to decide which prior object (if any) a new
// object should be deltified against: filtering by kind/depth/size
// band, scoring admissible candidates, grouping/sorting the emission
// order, and the final accept/reject call on a produced delta.
package heuristics

import (
	"sort"

	"github.com/gitdelta/packcore/packobj"
)

const (
	// MinSizeForDelta is the smallest payload size the writer will ever
	// attempt to deltify.
	MinSizeForDelta = 16

	// MaxDeltaChainDepth bounds how many OFS_DELTA hops must be walked
	// to reconstruct an object from the nearest full entry.
	MaxDeltaChainDepth = 50

	// WindowSize is the number of immediately preceding entries in
	// emission order considered as delta-base candidates for a target.
	WindowSize = 10

	// maxSizeRatio bounds how different in size an admissible
	// candidate/target pair may be.
	maxSizeRatio = 2.0

	// smallDeltaException: deltas shorter than this are always
	// accepted so long as the target-ratio condition holds, regardless
	// of the base-size comparison.
	smallDeltaException = 100
)

// Admissible reports whether candidate is a legal delta base for
// target: same kind, shallow enough to leave room under maxDepth, and
// within the 2x size band.
func Admissible(candidate, target *packobj.Record, maxDepth int) bool {
	if candidate.Kind != target.Kind {
		return false
	}
	if candidate.Depth >= maxDepth {
		return false
	}

	cs, ts := len(candidate.Payload), len(target.Payload)
	if cs == 0 || ts == 0 {
		return false
	}

	big, small := cs, ts
	if small > big {
		big, small = small, big
	}
	return float64(big)/float64(small) <= maxSizeRatio
}

// Score is the 0-100 similarity score between a candidate base and a
// target, broken into its four weighted components.
type Score struct {
	SizeSimilarity  float64 // 0-30
	PrefixSimilarity float64 // 0-30
	PathSimilarity  float64 // 0-20
	DepthPreference float64 // 0-20
}

// Total returns the sum of the four components.
func (s Score) Total() float64 {
	return s.SizeSimilarity + s.PrefixSimilarity + s.PathSimilarity + s.DepthPreference
}

// ScoreCandidate computes the similarity score between candidate and
// target. Callers are expected to have already checked Admissible.
func ScoreCandidate(candidate, target *packobj.Record) Score {
	return Score{
		SizeSimilarity:   sizeSimilarity(candidate, target),
		PrefixSimilarity: prefixSimilarity(candidate, target),
		PathSimilarity:   pathSimilarity(candidate, target),
		DepthPreference:  depthPreference(candidate),
	}
}

func sizeSimilarity(candidate, target *packobj.Record) float64 {
	ts := len(target.Payload)
	if ts == 0 {
		return 0
	}
	delta := len(candidate.Payload) - ts
	if delta < 0 {
		delta = -delta
	}
	ratio := float64(delta) / float64(ts)
	if ratio > 1 {
		ratio = 1
	}
	return (1 - ratio) * 30
}

func prefixSimilarity(candidate, target *packobj.Record) float64 {
	p := len(candidate.Payload)
	if len(target.Payload) < p {
		p = len(target.Payload)
	}
	if p > 100 {
		p = 100
	}
	if p == 0 {
		return 0
	}

	matching := 0
	for i := 0; i < p; i++ {
		if candidate.Payload[i] != target.Payload[i] {
			break
		}
		matching++
	}
	return (float64(matching) / float64(p)) * 30
}

func pathSimilarity(candidate, target *packobj.Record) float64 {
	if !candidate.HasPath() || !target.HasPath() {
		return 0
	}
	if candidate.Path == target.Path {
		return 20
	}
	if trailingComponent(candidate.Path) == trailingComponent(target.Path) {
		return 10
	}
	return 0
}

func trailingComponent(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func depthPreference(candidate *packobj.Record) float64 {
	return (1 - float64(candidate.Depth)/float64(MaxDeltaChainDepth)) * 20
}

// Candidate pairs a record with its score against some implicit target,
// used by FindBest to return the chosen base alongside its score.
type Candidate struct {
	Record *packobj.Record
	Score  Score
}

// FindBest returns the highest-scoring admissible candidate for target,
// breaking ties by earliest position in candidates (the caller is
// expected to pass candidates in insertion/window order). maxDepth is
// threaded straight into Admissible; callers that want the package
// default pass MaxDeltaChainDepth. ok is false if no candidate is
// admissible.
func FindBest(target *packobj.Record, candidates []*packobj.Record, maxDepth int) (Candidate, bool) {
	var best Candidate
	found := false

	for _, c := range candidates {
		if !Admissible(c, target, maxDepth) {
			continue
		}
		sc := ScoreCandidate(c, target)
		if !found || sc.Total() > best.Score.Total() {
			best = Candidate{Record: c, Score: sc}
			found = true
		}
	}

	return best, found
}

// groupKey returns the partition key an object is assigned within its
// kind group: its path when present, otherwise the first two hex
// characters of its oid.
func groupKey(r *packobj.Record) string {
	if r.HasPath() {
		return r.Path
	}
	oid := r.OID.String()
	if len(oid) >= 2 {
		return oid[:2]
	}
	return oid
}

// kindPriority orders the kind groups blob-first: blobs are the most
// numerous and benefit most from version-over-version locality, trees
// next, then commits and tags, which rarely delta well against one
// another.
var kindPriority = map[packobj.Kind]int{
	packobj.Blob:   0,
	packobj.Tree:   1,
	packobj.Commit: 2,
	packobj.Tag:    3,
}

// Order returns objects grouped by kind, partitioned by path (or oid
// prefix), with partitions sorted lexicographically by key and each
// partition internally sorted by ascending payload size.
func Order(objects []*packobj.Record) []*packobj.Record {
	byKind := make(map[packobj.Kind][]*packobj.Record)
	var kinds []packobj.Kind
	for _, o := range objects {
		if _, ok := byKind[o.Kind]; !ok {
			kinds = append(kinds, o.Kind)
		}
		byKind[o.Kind] = append(byKind[o.Kind], o)
	}
	sort.Slice(kinds, func(i, j int) bool { return kindPriority[kinds[i]] < kindPriority[kinds[j]] })

	out := make([]*packobj.Record, 0, len(objects))
	for _, k := range kinds {
		out = append(out, orderGroup(byKind[k])...)
	}
	return out
}

func orderGroup(group []*packobj.Record) []*packobj.Record {
	byPartition := make(map[string][]*packobj.Record)
	var keys []string
	for _, o := range group {
		k := groupKey(o)
		if _, ok := byPartition[k]; !ok {
			keys = append(keys, k)
		}
		byPartition[k] = append(byPartition[k], o)
	}
	sort.Strings(keys)

	out := make([]*packobj.Record, 0, len(group))
	for _, k := range keys {
		part := byPartition[k]
		sort.SliceStable(part, func(i, j int) bool {
			return len(part[i].Payload) < len(part[j].Payload)
		})
		out = append(out, part...)
	}
	return out
}

// Window returns the candidate slice for the object at position i in
// an ordered sequence: the preceding WindowSize entries.
func Window(ordered []*packobj.Record, i int) []*packobj.Record {
	start := i - WindowSize
	if start < 0 {
		start = 0
	}
	return ordered[start:i]
}

// AcceptDelta implements the accept/reject policy: a produced delta of
// length deltaLen is acceptable against a base of length baseLen for a
// target of length targetLen iff it is under half the target size AND
// strictly shorter than the base, with an exception for very small
// deltas (always acceptable once the target-ratio condition holds).
func AcceptDelta(deltaLen, baseLen, targetLen int) bool {
	if float64(deltaLen) >= 0.5*float64(targetLen) {
		return false
	}
	if deltaLen < smallDeltaException {
		return true
	}
	return deltaLen < baseLen
}
