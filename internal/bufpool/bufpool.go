// Package bufpool pools the scratch buffers used on the loose-object
// read path (packobj/fsstore and iocopy.Copy): a sync.Pool of *[]byte,
// zeroed on return, and a sync.Pool of *bytes.Buffer, reset when
// borrowed.
package bufpool

import (
	"bytes"
	"sync"
)

var (
	byteSlice = sync.Pool{
		New: func() interface{} {
			b := make([]byte, 16*1024)
			return &b
		},
	}
	bytesBuffer = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(nil)
		},
	}
)

// GetByteSlice returns a *[]byte managed by a sync.Pool. The initial
// slice length is 16384 (16KiB).
//
// After use, the *[]byte should be returned with PutByteSlice.
func GetByteSlice() *[]byte {
	return byteSlice.Get().(*[]byte)
}

// PutByteSlice returns buf to its pool, zeroing the first used bytes
// so a subsequent borrower never observes stale data.
func PutByteSlice(buf *[]byte, used int) {
	if buf == nil {
		return
	}

	b := *buf
	if used <= 0 {
		used = cap(b)
	}

	n := used
	if n > cap(b) {
		n = cap(b)
	}
	for i := 0; i < n; i++ {
		b[i] = 0
	}

	byteSlice.Put(&b)
}

// GetBytesBuffer returns a *bytes.Buffer managed by a sync.Pool, reset
// and ready for use.
//
// After use, the buffer should be returned with PutBytesBuffer.
func GetBytesBuffer() *bytes.Buffer {
	buf := bytesBuffer.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBytesBuffer returns buf to its pool.
func PutBytesBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	bytesBuffer.Put(buf)
}
