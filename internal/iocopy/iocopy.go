// Package iocopy provides the buffered-copy helpers packobj/fsstore
// uses to read and write loose objects: io.CopyBuffer over a pooled scratch
// slice, plus a CheckClose defer helper that doesn't clobber an
// earlier error.
package iocopy

import (
	"io"

	"github.com/gitdelta/packcore/internal/bufpool"
)

// Copy calls io.CopyBuffer with a buffer borrowed from bufpool, to
// avoid allocating a fresh scratch buffer on every call.
func Copy(dst io.Writer, src io.Reader) (n int64, err error) {
	buf := bufpool.GetByteSlice()
	n, err = io.CopyBuffer(dst, src, *buf)
	bufpool.PutByteSlice(buf, int(n))
	return
}

// CheckClose calls Close on c and, if *err is still nil, assigns it
// the resulting error. Intended for use with defer:
//
//	defer iocopy.CheckClose(f, &err)
func CheckClose(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
