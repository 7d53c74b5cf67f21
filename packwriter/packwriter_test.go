package packwriter

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/sha1"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdelta/packcore/delta"
	"github.com/gitdelta/packcore/heuristics"
	"github.com/gitdelta/packcore/packobj"
)

func oidOf(payload []byte) packobj.OID {
	sum := sha1.Sum(payload)
	return packobj.OID(sum)
}

func blob(payload []byte) *packobj.Record {
	return &packobj.Record{OID: oidOf(payload), Kind: packobj.Blob, Payload: payload}
}

// decodedEntry is a parsed pack entry, used only by tests to verify
// wire-level correctness — production code never reads a pack back.
type decodedEntry struct {
	offset     int64
	typ        byte
	size       uint64
	backRef    int64 // absolute offset of the OFS_DELTA base, or 0
	payload    []byte
}

// decodePack walks a pack byte stream produced by Encode/EncodeConcurrent
// and returns every entry plus the trailing hash, without interpreting
// delta bodies. It exists only to verify wire-format correctness in
// tests; the production writer has no corresponding read path.
func decodePack(t *testing.T, raw []byte) (entries []decodedEntry, trailer [20]byte) {
	t.Helper()
	require.GreaterOrEqual(t, len(raw), 12+20)

	require.Equal(t, []byte("PACK"), raw[0:4])
	version := be32(raw[4:8])
	require.Equal(t, uint32(2), version)
	count := be32(raw[8:12])

	pos := int64(12)
	body := raw[:len(raw)-20]
	copy(trailer[:], raw[len(raw)-20:])

	for i := uint32(0); i < count; i++ {
		start := pos

		typ, size, n := readEntryHeader(body[pos:])
		pos += int64(n)

		var backRef int64
		if typ == typeOFSDelta {
			neg, n := readOffsetBackRef(body[pos:])
			pos += int64(n)
			backRef = start - neg
		}

		cr := &countingReader{r: bytes.NewReader(body[pos:])}
		zr, err := zlib.NewReader(cr)
		require.NoError(t, err)
		decompressed, err := io.ReadAll(zr)
		require.NoError(t, err)
		require.NoError(t, zr.Close())
		require.EqualValues(t, size, len(decompressed))

		entries = append(entries, decodedEntry{
			offset:  start,
			typ:     typ,
			size:    size,
			backRef: backRef,
			payload: decompressed,
		})
		pos += int64(cr.n)
	}

	require.Equal(t, len(body), int(pos))
	return entries, trailer
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ReadByte lets flate.Reader pull bytes one at a time instead of
// wrapping us in its own bufio.Reader, so n tracks exactly how many
// compressed bytes this entry's zlib stream occupied — critical since
// the underlying reader spans the rest of the pack, not just this
// entry.
func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.(*bytes.Reader).ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// readEntryHeader is the inverse of appendEntryHeader.
func readEntryHeader(b []byte) (typ byte, size uint64, n int) {
	c := b[0]
	typ = (c >> 4) & 0x07
	size = uint64(c & 0x0f)
	shift := uint(4)
	n = 1
	for c&0x80 != 0 {
		c = b[n]
		size |= uint64(c&0x7f) << shift
		shift += 7
		n++
	}
	return typ, size, n
}

// readOffsetBackRef is the inverse of appendOffsetBackRef.
func readOffsetBackRef(b []byte) (neg int64, n int) {
	c := b[0]
	acc := int64(c & 0x7f)
	n = 1
	for c&0x80 != 0 {
		c = b[n]
		n++
		acc++
		acc = (acc << 7) | int64(c&0x7f)
	}
	return acc, n
}

func TestScenarioS6PackWritesOFSDeltaForSimilarPair(t *testing.T) {
	a := blob(bytes.Repeat([]byte("A"), 200))
	b := blob(append(bytes.Repeat([]byte("A"), 200), '!'))
	c := blob(bytes.Repeat([]byte("Z"), 200))

	var out bytes.Buffer
	stats, err := Encode(&out, []*packobj.Record{a, b, c}, NewZlibDeflate(), NewSHA1Hasher())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, 1, stats.DeltaEntries)
	assert.Equal(t, 2, stats.FullEntries)

	entries, trailer := decodePack(t, out.Bytes())
	require.Len(t, entries, 3)

	deltaCount := 0
	for _, e := range entries {
		if e.typ == typeOFSDelta {
			deltaCount++
		}
	}
	assert.Equal(t, 1, deltaCount)

	sum := sha1.Sum(out.Bytes()[:out.Len()-20])
	assert.Equal(t, sum, trailer)
}

func TestEncodeHeaderAndTrailerAreValid(t *testing.T) {
	objs := []*packobj.Record{
		blob([]byte("one")),
		blob([]byte("two")),
		blob([]byte("three")),
	}

	var out bytes.Buffer
	stats, err := Encode(&out, objs, NewZlibDeflate(), NewSHA1Hasher())
	require.NoError(t, err)
	assert.Equal(t, int64(out.Len()), stats.BytesWritten)

	entries, trailer := decodePack(t, out.Bytes())
	assert.Len(t, entries, 3)

	want := sha1.Sum(out.Bytes()[:out.Len()-20])
	assert.Equal(t, want, trailer)
}

// TestAcceptanceLowerBoundHolds exercises property 8: whenever Encode
// picks an OFS_DELTA entry, the uncompressed delta is under half the
// target size and strictly shorter than its base.
func TestAcceptanceLowerBoundHolds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var objs []*packobj.Record

	base := make([]byte, 2000)
	rng.Read(base)
	objs = append(objs, blob(append([]byte(nil), base...)))

	for i := 0; i < 20; i++ {
		mutated := append([]byte(nil), base...)
		for j := 0; j < 5; j++ {
			mutated[rng.Intn(len(mutated))] = byte(rng.Intn(256))
		}
		objs = append(objs, blob(mutated))
	}

	var out bytes.Buffer
	_, err := Encode(&out, objs, NewZlibDeflate(), NewSHA1Hasher())
	require.NoError(t, err)

	entries, _ := decodePack(t, out.Bytes())
	offsetIndex := make(map[int64]int, len(entries))
	for i, e := range entries {
		offsetIndex[e.offset] = i
	}

	ordered := heuristics.Order(objs)
	require.Len(t, ordered, len(entries))

	for i, e := range entries {
		if e.typ != typeOFSDelta {
			continue
		}
		// A base that is itself an OFS_DELTA entry decodes to delta
		// bytes, so measure the base object's payload instead.
		baseLen := len(ordered[offsetIndex[e.backRef]].Payload)
		targetLen := len(ordered[i].Payload)

		assert.Less(t, len(e.payload), baseLen)
		assert.Less(t, float64(len(e.payload)), 0.5*float64(targetLen))
	}
}

// TestDepthCapNeverExceeded exercises property 9 over a long chain of
// near-identical objects, where a naive implementation would otherwise
// chain every object onto the previous one without bound.
func TestDepthCapNeverExceeded(t *testing.T) {
	var objs []*packobj.Record
	base := bytes.Repeat([]byte("x"), 500)
	for i := 0; i < heuristics.MaxDeltaChainDepth+20; i++ {
		payload := append([]byte(nil), base...)
		payload[i%len(payload)] = byte('a' + i%26)
		objs = append(objs, blob(payload))
	}

	var out bytes.Buffer
	_, err := Encode(&out, objs, NewZlibDeflate(), NewSHA1Hasher())
	require.NoError(t, err)

	for _, o := range objs {
		assert.LessOrEqual(t, o.Depth, heuristics.MaxDeltaChainDepth)
	}
}

// TestWithMaxDeltaChainDepthGovernsEmission confirms WithMaxDeltaChainDepth
// actually constrains the writer: a chain long enough to exceed a small
// configured depth must produce more full entries than the same chain
// encoded with the package default.
func TestWithMaxDeltaChainDepthGovernsEmission(t *testing.T) {
	var objs []*packobj.Record
	base := bytes.Repeat([]byte("x"), 500)
	for i := 0; i < 30; i++ {
		payload := append([]byte(nil), base...)
		payload[i%len(payload)] = byte('a' + i%26)
		objs = append(objs, blob(payload))
	}

	var defaultOut bytes.Buffer
	_, err := Encode(&defaultOut, objs, NewZlibDeflate(), NewSHA1Hasher())
	require.NoError(t, err)
	for _, o := range objs {
		assert.LessOrEqual(t, o.Depth, heuristics.MaxDeltaChainDepth)
	}

	for _, o := range objs {
		o.Depth = 0
	}

	var cappedOut bytes.Buffer
	_, err = Encode(&cappedOut, objs, NewZlibDeflate(), NewSHA1Hasher(), WithMaxDeltaChainDepth(3))
	require.NoError(t, err)
	for _, o := range objs {
		assert.LessOrEqual(t, o.Depth, 3)
	}

	fullEntries := 0
	for _, o := range objs {
		if o.Depth == 0 {
			fullEntries++
		}
	}
	assert.Greater(t, fullEntries, 1, "a depth cap of 3 over a 30-object chain must force multiple full entries")
}

// TestPackIntegrityReconstructsEveryDelta exercises property 10:
// every OFS_DELTA entry's base is a prior, already-emitted entry, and
// applying the delta against the base's decompressed bytes reproduces
// the target's original payload.
func TestPackIntegrityReconstructsEveryDelta(t *testing.T) {
	objs := []*packobj.Record{
		blob(bytes.Repeat([]byte("A"), 300)),
		blob(append(bytes.Repeat([]byte("A"), 300), []byte("tail")...)),
		blob(bytes.Repeat([]byte("B"), 300)),
	}
	var out bytes.Buffer
	_, err := Encode(&out, objs, NewZlibDeflate(), NewSHA1Hasher())
	require.NoError(t, err)

	entries, trailer := decodePack(t, out.Bytes())

	want := sha1.Sum(out.Bytes()[:out.Len()-20])
	require.Equal(t, want, trailer)

	byOffset := make(map[int64]decodedEntry, len(entries))
	for _, e := range entries {
		byOffset[e.offset] = e
	}

	reconstructed := make(map[int64][]byte, len(entries))

	var resolve func(e decodedEntry) []byte
	resolve = func(e decodedEntry) []byte {
		if r, ok := reconstructed[e.offset]; ok {
			return r
		}
		if e.typ != typeOFSDelta {
			reconstructed[e.offset] = e.payload
			return e.payload
		}
		baseBytes := resolve(byOffset[e.backRef])
		target, err := delta.Apply(baseBytes, e.payload)
		require.NoError(t, err)
		reconstructed[e.offset] = target
		return target
	}

	ordered := heuristics.Order(objs)
	for i, e := range entries {
		got := resolve(e)
		want := ordered[i].Payload
		assert.Equal(t, want, got)
	}
}

func TestEncodeConcurrentProducesValidPack(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	var objs []*packobj.Record
	base := make([]byte, 1000)
	rng.Read(base)
	for i := 0; i < 30; i++ {
		mutated := append([]byte(nil), base...)
		mutated[rng.Intn(len(mutated))] = byte(rng.Intn(256))
		objs = append(objs, blob(mutated))
	}

	var out bytes.Buffer
	stats, err := EncodeConcurrent(context.Background(), &out, objs, NewZlibDeflate(), NewSHA1Hasher(), WithConcurrency(4))
	require.NoError(t, err)
	assert.Equal(t, len(objs), stats.Entries)

	entries, trailer := decodePack(t, out.Bytes())
	assert.Len(t, entries, len(objs))

	want := sha1.Sum(out.Bytes()[:out.Len()-20])
	assert.Equal(t, want, trailer)
}

func TestEncodeRejectsSmallPayloadsAsFullEntries(t *testing.T) {
	objs := []*packobj.Record{
		blob([]byte("a")),
		blob([]byte("ab")),
	}

	var out bytes.Buffer
	stats, err := Encode(&out, objs, NewZlibDeflate(), NewSHA1Hasher())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FullEntries)
	assert.Equal(t, 0, stats.DeltaEntries)
}

func TestEncodePropagatesCompressionFailure(t *testing.T) {
	objs := []*packobj.Record{blob([]byte("hello world this is a payload"))}
	boom := func([]byte) ([]byte, error) { return nil, assert.AnError }

	var out bytes.Buffer
	_, err := Encode(&out, objs, boom, NewSHA1Hasher())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompressionFailed)
}
