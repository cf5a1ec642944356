package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// extendedLengthMarker in a 16-bit length prefix announces that the true
// length follows as a 32-bit value.
const extendedLengthMarker = 0xFFFF

// ErrFrameSize reports a frame whose declared payload length is zero or
// exceeds the receive buffer. The connection is unrecoverable after it:
// the stream offset of the next frame is unknown.
var ErrFrameSize = errors.New("invalid frame size")

// ReadFrame reads one length-prefixed frame from r into buf and returns the
// payload length. The prefix is a little-endian 16-bit length; the marker
// value 0xFFFF escapes to a 32-bit length. Both the marker and the true
// length are bounds-checked against the buffer before any payload is read.
func ReadFrame(r io.Reader, buf []byte) (int, error) {
	var prefix [4]byte

	if _, err := io.ReadFull(r, prefix[:2]); err != nil {
		return 0, err
	}
	size := int(binary.LittleEndian.Uint16(prefix[:2]))
	if size == 0 || size > len(buf) {
		return 0, fmt.Errorf("%w: %d byte payload, %d byte buffer", ErrFrameSize, size, len(buf))
	}

	if size == extendedLengthMarker {
		if _, err := io.ReadFull(r, prefix[:4]); err != nil {
			return 0, err
		}
		size = int(binary.LittleEndian.Uint32(prefix[:4]))
		if size == 0 || size > len(buf) {
			return 0, fmt.Errorf("%w: %d byte payload, %d byte buffer", ErrFrameSize, size, len(buf))
		}
	}

	if _, err := io.ReadFull(r, buf[:size]); err != nil {
		return 0, err
	}
	return size, nil
}

// AppendFrame appends a length-prefixed copy of payload to dst and returns
// the extended slice. It is the inverse of ReadFrame and exists for clients
// and tests; server responses patch their prefix in place instead.
func AppendFrame(dst, payload []byte) []byte {
	if len(payload) < extendedLengthMarker {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)))
	} else {
		dst = binary.LittleEndian.AppendUint16(dst, extendedLengthMarker)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	}
	return append(dst, payload...)
}
