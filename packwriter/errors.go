package packwriter

import (
	"errors"

	"github.com/gitdelta/packcore/packobj"
)

// ErrObjectNotFound is the sentinel a packobj.Source implementation
// should wrap when an object cannot be produced. It is the same value
// as packobj.ErrObjectNotFound, so callers can errors.Is against either
// package's sentinel interchangeably; packwriter itself never returns
// it, since Encode takes records that have already been read.
var ErrObjectNotFound = packobj.ErrObjectNotFound

// ErrCompressionFailed wraps whatever error the caller's Deflate
// function returned.
var ErrCompressionFailed = errors.New("packwriter: compression failed")
