package packwriter

import (
	"bytes"
	"compress/zlib"
)

// NewZlibDeflate returns a Deflate that compresses with compress/zlib,
// the codec Git's pack-v2 format uses for every entry body.
func NewZlibDeflate() Deflate {
	return func(p []byte) ([]byte, error) {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(p); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}
