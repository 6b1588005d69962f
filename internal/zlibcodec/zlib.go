// Package zlibcodec compresses and decompresses CoT payloads using a
// standard zlib stream (not raw deflate), because the Android peer
// decompresses with a standard zlib library.
package zlibcodec

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// Header is the two-byte zlib header this package always produces:
// default compression level, no preset dictionary.
var Header = [2]byte{0x78, 0x9C}

// ErrCompressionFailed wraps any error from the underlying zlib writer.
var ErrCompressionFailed = errors.New("zlibcodec: compression failed")

// Compress deflates data into a standard zlib stream beginning with the
// 0x78 0x9C header.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream, accepting any `78 xx` header. On
// failure to decode it returns ok=false so the caller can fall back to
// treating the payload as raw UTF-8, per spec.
//
// The native zlib API this is ported from reports BUF_ERROR and expects
// the caller to double a fixed output buffer and retry; Go's zlib.Reader
// has no such fixed buffer, so io.ReadAll's own internal growth already
// covers that case and a single pass suffices.
func Decompress(data []byte) (out []byte, ok bool) {
	if len(data) < 2 || data[0] != 0x78 {
		return nil, false
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	defer r.Close()

	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	return decoded, true
}
