package server

import (
	"encoding/binary"
	"errors"

	"github.com/pierrec/lz4"
)

// minCompressibleSize is the minimum snapshot size worth compressing.
// Smaller payloads are sent as plain text frames.
const minCompressibleSize = 128

// ErrDecompressionFailed is returned when a compressed snapshot cannot be
// restored.
var ErrDecompressionFailed = errors.New("snapshot decompression failed")

// compressSnapshot compresses a serialized snapshot with LZ4, prefixing the
// uncompressed length so the receiver can size its buffer. It returns
// (nil, false) when compression is not worthwhile.
func compressSnapshot(data []byte) ([]byte, bool) {
	if len(data) < minCompressibleSize {
		return nil, false
	}

	buf := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))

	n, err := lz4.CompressBlock(data, buf[4:], nil)
	if err != nil || n == 0 || n+4 >= len(data) {
		return nil, false
	}
	return buf[:4+n], true
}

// decompressSnapshot restores a snapshot produced by compressSnapshot.
func decompressSnapshot(frame []byte) ([]byte, error) {
	if len(frame) < 4 {
		return nil, ErrDecompressionFailed
	}
	size := binary.BigEndian.Uint32(frame[:4])
	out := make([]byte, size)

	n, err := lz4.UncompressBlock(frame[4:], out)
	if err != nil || n != int(size) {
		return nil, ErrDecompressionFailed
	}
	return out, nil
}
