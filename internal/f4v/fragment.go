package f4v

import (
	"errors"
	"fmt"
)

// ErrNoMdat reports a media fragment that contains no mdat box.
var ErrNoMdat = errors.New("no mdat box in fragment")

// MdatPayload returns a copy of the payload of the first mdat box in an
// HDS media fragment. A fragment is a sequence of boxes, typically afra
// followed by mdat, the mdat holding serialized FLV tags.
//
// An mdat whose declared size overruns the buffer is returned truncated
// because live origins cut the last fragment at the wire. Any other box
// overrunning the buffer is an error.
func MdatPayload(data []byte) ([]byte, error) {
	c := NewCursor(data)
	for c.Remaining() >= BoxHeaderSize {
		start := c.Pos()
		h, err := ReadBoxHeader(c)
		if err != nil {
			return nil, fmt.Errorf("fragment box at offset %d: %w", start, err)
		}
		end := start + int(h.Size)
		if h.Type == TypeMDAT {
			if end > c.Len() {
				return c.ReadRemaining(), nil
			}
			return c.ReadBytes(int(h.PayloadSize()))
		}
		if end > c.Len() {
			return nil, fmt.Errorf("fragment box %q at offset %d: declared size %d overruns buffer: %w",
				h.TypeString(), start, h.Size, ErrOutOfBounds)
		}
		if err := c.ResetTo(end); err != nil {
			return nil, fmt.Errorf("skipping box %q: %w", h.TypeString(), err)
		}
	}
	return nil, ErrNoMdat
}
