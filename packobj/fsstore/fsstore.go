// Package fsstore adapts a go-billy filesystem into a packobj.Source,
// reading loose objects laid out the way Git's object database does:
// under a root directory, the first two hex characters of the oid
// name a fan-out subdirectory and the remaining 38 name the file
// inside it. Each file holds a one-byte kind tag followed by the raw
// payload; fsstore does not itself speak Git's loose-object zlib
// envelope, it only fixes the on-disk shape callers must produce.
package fsstore

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/gitdelta/packcore/internal/bufpool"
	"github.com/gitdelta/packcore/internal/iocopy"
	"github.com/gitdelta/packcore/packobj"
)

// Store reads loose objects from a billy.Filesystem rooted at a
// directory laid out in Git's fan-out shape.
type Store struct {
	fs   billy.Filesystem
	root string
}

// New returns a Store reading objects from root within fs. Passing ""
// for root reads directly from fs's own root.
func New(fs billy.Filesystem, root string) *Store {
	return &Store{fs: fs, root: root}
}

func (s *Store) path(oid packobj.OID) string {
	hexOID := oid.String()
	name := hexOID[2:]
	dir := hexOID[:2]
	if s.root == "" {
		return s.fs.Join(dir, name)
	}
	return s.fs.Join(s.root, dir, name)
}

// Read implements packobj.Source. It opens the loose-object file for
// oid, reads its one-byte kind tag, and returns the remaining bytes as
// the payload.
func (s *Store) Read(oid packobj.OID) (kind packobj.Kind, payload []byte, err error) {
	f, openErr := s.fs.Open(s.path(oid))
	if openErr != nil {
		return packobj.InvalidKind, nil, fmt.Errorf("%w: %s", packobj.ErrObjectNotFound, oid)
	}
	defer iocopy.CheckClose(f, &err)

	br := bufio.NewReader(f)
	tag, err := br.ReadByte()
	if err != nil {
		if err == io.EOF {
			return packobj.InvalidKind, nil, fmt.Errorf("fsstore: %s: empty object file", oid)
		}
		return packobj.InvalidKind, nil, fmt.Errorf("fsstore: %s: %w", oid, err)
	}
	kind = packobj.Kind(tag)
	if !kind.Valid() {
		return packobj.InvalidKind, nil, fmt.Errorf("fsstore: %s: invalid kind byte 0x%02x", oid, tag)
	}

	buf := bufpool.GetBytesBuffer()
	defer bufpool.PutBytesBuffer(buf)

	if _, err = iocopy.Copy(buf, br); err != nil {
		return packobj.InvalidKind, nil, fmt.Errorf("fsstore: %s: %w", oid, err)
	}

	payload = make([]byte, buf.Len())
	copy(payload, buf.Bytes())
	return kind, payload, nil
}

// Write stores an object's kind and payload at its fan-out path,
// creating the subdirectory if necessary. It is the inverse of Read,
// used by tests and by tools that populate a Store ahead of a pack
// build.
func (s *Store) Write(oid packobj.OID, kind packobj.Kind, payload []byte) (err error) {
	if !kind.Valid() {
		return fmt.Errorf("fsstore: %s: invalid kind %d", oid, kind)
	}
	hexOID := oid.String()
	dir := hexOID[:2]
	dirPath := dir
	if s.root != "" {
		dirPath = s.fs.Join(s.root, dir)
	}
	if err := s.fs.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("fsstore: %s: %w", oid, err)
	}

	f, err := s.fs.Create(s.path(oid))
	if err != nil {
		return fmt.Errorf("fsstore: %s: %w", oid, err)
	}
	defer iocopy.CheckClose(f, &err)

	if _, err := f.Write([]byte{byte(kind)}); err != nil {
		return fmt.Errorf("fsstore: %s: %w", oid, err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("fsstore: %s: %w", oid, err)
	}
	return nil
}

// ListOIDs walks the fan-out directories under the store's root and
// returns every oid it finds. Entries whose name doesn't decode as 38
// hex characters are skipped rather than erroring, so a store rooted
// on a directory that also holds unrelated files can still be walked.
func (s *Store) ListOIDs() ([]packobj.OID, error) {
	root := s.root
	if root == "" {
		root = "."
	}

	fanouts, err := s.fs.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("fsstore: %w", err)
	}

	var oids []packobj.OID
	for _, fo := range fanouts {
		if !fo.IsDir() || len(fo.Name()) != 2 {
			continue
		}
		entries, err := s.fs.ReadDir(s.fs.Join(root, fo.Name()))
		if err != nil {
			return nil, fmt.Errorf("fsstore: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || len(e.Name()) != 38 {
				continue
			}
			raw, err := hex.DecodeString(fo.Name() + e.Name())
			if err != nil || len(raw) != 20 {
				continue
			}
			var o packobj.OID
			copy(o[:], raw)
			oids = append(oids, o)
		}
	}
	return oids, nil
}
