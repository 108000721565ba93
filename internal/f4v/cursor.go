package f4v

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds reports a read or seek past the end of the buffer a
// Cursor was built over. Higher layers wrap it with field context, so
// callers classify with errors.Is.
var ErrOutOfBounds = errors.New("out of bounds")

// Cursor is a position-tracked sequential reader over an in-memory
// buffer. All multi-byte integers are big-endian. A failed read leaves
// the position unchanged, so a caller can report the exact offset the
// data ran out at.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor returns a cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Pos returns the current read position.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the total length of the underlying buffer.
func (c *Cursor) Len() int { return len(c.data) }

// Remaining returns the number of bytes left to read.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

func (c *Cursor) need(n int) error {
	if r := c.Remaining(); r < n {
		return fmt.Errorf("%w: need %d byte(s) at offset %d, have %d", ErrOutOfBounds, n, c.pos, r)
	}
	return nil
}

// ReadUint8 reads one byte.
func (c *Cursor) ReadUint8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

// ReadUint16 reads a big-endian 16-bit integer.
func (c *Cursor) ReadUint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadUint32 reads a big-endian 32-bit integer.
func (c *Cursor) ReadUint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

// ReadUint64 reads a big-endian 64-bit integer.
func (c *Cursor) ReadUint64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

// ReadBytes reads the next n bytes. The returned slice is a copy and
// does not alias the cursor's buffer.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrOutOfBounds, n)
	}
	if err := c.need(n); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, c.data[c.pos:])
	c.pos += n
	return v, nil
}

// ReadString reads a null-terminated string and consumes the
// terminator. The terminator is not part of the result. A missing
// terminator is an out-of-bounds error.
func (c *Cursor) ReadString() (string, error) {
	i := bytes.IndexByte(c.data[c.pos:], 0)
	if i < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %d", ErrOutOfBounds, c.pos)
	}
	v := string(c.data[c.pos : c.pos+i])
	c.pos += i + 1
	return v, nil
}

// ReadRemaining consumes and returns everything left as a copy.
func (c *Cursor) ReadRemaining() []byte {
	v := make([]byte, c.Remaining())
	copy(v, c.data[c.pos:])
	c.pos = len(c.data)
	return v
}

// ResetTo moves the cursor to an absolute position. Positioning at
// Len() is valid and leaves nothing to read.
func (c *Cursor) ResetTo(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return fmt.Errorf("%w: reset to %d outside 0..%d", ErrOutOfBounds, pos, len(c.data))
	}
	c.pos = pos
	return nil
}

// Rewind moves the cursor back n bytes.
func (c *Cursor) Rewind(n int) error {
	if n < 0 || n > c.pos {
		return fmt.Errorf("%w: rewind %d from offset %d", ErrOutOfBounds, n, c.pos)
	}
	c.pos -= n
	return nil
}
