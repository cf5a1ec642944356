// Package protocol implements the query manager wire format: bounds-checked
// buffer views over fixed request/response buffers, the length-prefixed frame
// codec, and the opcode, status, and role tables shared by the connection
// engine and the query dispatcher.
//
// Buffer views never grow their backing slice and never panic on overrun.
// Reads past the end yield zero values and writes past the end are dropped,
// but the cursor always advances by the requested amount, so a single
// Overflowed check after a batch of operations is enough to detect a
// truncated request or an oversized response.
package protocol

import "encoding/binary"

// ReadBuffer is a cursor over a received request payload.
//
// All decode methods advance the cursor even when the underlying bytes are
// missing; short reads return zero values and leave the buffer overflowed.
type ReadBuffer struct {
	data []byte
	pos  int
}

// NewReadBuffer returns a view over data positioned at its start.
func NewReadBuffer(data []byte) *ReadBuffer {
	return &ReadBuffer{data: data}
}

// CanRead reports whether n more bytes fit between the cursor and the end.
func (b *ReadBuffer) CanRead(n int) bool {
	return b.pos+n <= len(b.data)
}

// Overflowed reports whether any decode ran past the end of the buffer.
func (b *ReadBuffer) Overflowed() bool {
	return b.pos > len(b.data)
}

// Position returns the current cursor offset.
func (b *ReadBuffer) Position() int {
	return b.pos
}

// Size returns the total number of readable bytes.
func (b *ReadBuffer) Size() int {
	return len(b.data)
}

// Read8 decodes a single byte.
func (b *ReadBuffer) Read8() uint8 {
	var v uint8
	if b.CanRead(1) {
		v = b.data[b.pos]
	}
	b.pos++
	return v
}

// Read16 decodes a little-endian 16-bit value.
func (b *ReadBuffer) Read16() uint16 {
	var v uint16
	if b.CanRead(2) {
		v = binary.LittleEndian.Uint16(b.data[b.pos:])
	}
	b.pos += 2
	return v
}

// Read32 decodes a little-endian 32-bit value.
func (b *ReadBuffer) Read32() uint32 {
	var v uint32
	if b.CanRead(4) {
		v = binary.LittleEndian.Uint32(b.data[b.pos:])
	}
	b.pos += 4
	return v
}

// ReadBool decodes a single byte as a boolean. Any non-zero value is true.
func (b *ReadBuffer) ReadBool() bool {
	return b.Read8() != 0
}

// ReadString decodes a length-prefixed string. The length is a 16-bit value,
// or a 32-bit value when the 16-bit prefix is 0xFFFF.
//
// cap bounds the accepted payload: a string of cap or more bytes decodes as
// empty. The cursor advances past the payload either way, so one oversized
// field does not desynchronize the fields after it.
func (b *ReadBuffer) ReadString(cap int) string {
	length := int(b.Read16())
	if length == extendedLengthMarker {
		length = int(b.Read32())
	}

	var s string
	if length < cap && b.CanRead(length) {
		s = string(b.data[b.pos : b.pos+length])
	}
	b.pos += length
	return s
}

// WriteBuffer is a cursor over a response buffer being assembled.
//
// All encode methods advance the cursor even when the value does not fit;
// the dropped bytes leave the buffer overflowed, which the response framer
// detects before anything reaches the wire.
type WriteBuffer struct {
	data []byte
	pos  int
}

// NewWriteBuffer returns a view over buf positioned at its start.
func NewWriteBuffer(buf []byte) *WriteBuffer {
	return &WriteBuffer{data: buf}
}

// CanWrite reports whether n more bytes fit between the cursor and the end.
func (b *WriteBuffer) CanWrite(n int) bool {
	return b.pos+n <= len(b.data)
}

// Overflowed reports whether any encode ran past the end of the buffer.
func (b *WriteBuffer) Overflowed() bool {
	return b.pos > len(b.data)
}

// Position returns the current cursor offset.
func (b *WriteBuffer) Position() int {
	return b.pos
}

// Bytes returns the assembled prefix of the buffer up to the cursor.
// Call only after checking Overflowed.
func (b *WriteBuffer) Bytes() []byte {
	return b.data[:b.pos]
}

// Write8 encodes a single byte.
func (b *WriteBuffer) Write8(v uint8) {
	if b.CanWrite(1) {
		b.data[b.pos] = v
	}
	b.pos++
}

// Write16 encodes a little-endian 16-bit value.
func (b *WriteBuffer) Write16(v uint16) {
	if b.CanWrite(2) {
		binary.LittleEndian.PutUint16(b.data[b.pos:], v)
	}
	b.pos += 2
}

// Write32 encodes a little-endian 32-bit value.
func (b *WriteBuffer) Write32(v uint32) {
	if b.CanWrite(4) {
		binary.LittleEndian.PutUint32(b.data[b.pos:], v)
	}
	b.pos += 4
}

// Write32BE encodes a big-endian 32-bit value. IP addresses travel in
// network byte order while everything else on the wire is little-endian.
func (b *WriteBuffer) Write32BE(v uint32) {
	if b.CanWrite(4) {
		binary.BigEndian.PutUint32(b.data[b.pos:], v)
	}
	b.pos += 4
}

// WriteBool encodes a boolean as one byte.
func (b *WriteBuffer) WriteBool(v bool) {
	if v {
		b.Write8(1)
	} else {
		b.Write8(0)
	}
}

// WriteString encodes a length-prefixed string using the same 16/32-bit
// prefix rule that ReadString decodes.
func (b *WriteBuffer) WriteString(s string) {
	length := len(s)
	if length < extendedLengthMarker {
		b.Write16(uint16(length))
	} else {
		b.Write16(extendedLengthMarker)
		b.Write32(uint32(length))
	}

	if b.CanWrite(length) {
		copy(b.data[b.pos:], s)
	}
	b.pos += length
}

// Rewrite16 patches a little-endian 16-bit value at an already-written
// offset. The patch is dropped when the offset has not been written yet or
// the buffer has overflowed.
func (b *WriteBuffer) Rewrite16(pos int, v uint16) {
	if pos+2 <= b.pos && !b.Overflowed() {
		binary.LittleEndian.PutUint16(b.data[pos:], v)
	}
}

// Insert32 inserts a little-endian 32-bit value at pos, shifting everything
// already written at and after pos forward by four bytes. The cursor
// advances whether or not the shift fits.
func (b *WriteBuffer) Insert32(pos int, v uint32) {
	if b.CanWrite(4) {
		copy(b.data[pos+4:b.pos+4], b.data[pos:b.pos])
		binary.LittleEndian.PutUint32(b.data[pos:], v)
	}
	b.pos += 4
}
