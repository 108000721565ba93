package f4v

import (
	"errors"
	"fmt"
)

// BoxHeaderSize is the size of the common box prefix: a 32-bit length
// followed by the four-byte type tag.
const BoxHeaderSize = 8

// ErrExtendedSize reports a box declaring the 64-bit extended size
// form (size field == 1), which this decoder does not support.
var ErrExtendedSize = errors.New("extended box size not supported")

// ErrMalformedBox reports a box whose declared size cannot hold its
// own header.
var ErrMalformedBox = errors.New("malformed box")

// ErrUnexpectedBox reports a box of a different type than the
// structure at hand requires.
var ErrUnexpectedBox = errors.New("unexpected box type")

func tag(s string) [4]byte {
	var t [4]byte
	copy(t[:], s)
	return t
}

var (
	TypeABST = tag("abst")
	TypeASRT = tag("asrt")
	TypeAFRT = tag("afrt")
	TypeAFRA = tag("afra")
	TypeMDAT = tag("mdat")
	TypeMOOF = tag("moof")
)

// BoxHeader is the common prefix of every F4V box. Boxes compose a
// header value with per-type decode functions rather than embedding a
// base type.
type BoxHeader struct {
	// Size is the total box size in bytes, header included.
	Size uint32
	// Type is the four-character box tag.
	Type [4]byte
}

// TypeString returns the tag as a string, for messages and logs.
func (h BoxHeader) TypeString() string {
	return string(h.Type[:])
}

// PayloadSize returns the size of the box body. ReadBoxHeader only
// hands out headers with Size >= BoxHeaderSize, so this cannot wrap.
func (h BoxHeader) PayloadSize() uint32 {
	return h.Size - BoxHeaderSize
}

// ReadBoxHeader decodes a box header at the cursor: big-endian 32-bit
// size, then the type tag. On any error the cursor is left where it
// was, including the unsupported extended-size form.
func ReadBoxHeader(c *Cursor) (BoxHeader, error) {
	start := c.Pos()
	size, err := c.ReadUint32()
	if err != nil {
		return BoxHeader{}, fmt.Errorf("box size: %w", err)
	}
	t, err := c.ReadBytes(4)
	if err != nil {
		c.pos = start
		return BoxHeader{}, fmt.Errorf("box type: %w", err)
	}
	h := BoxHeader{Size: size}
	copy(h.Type[:], t)
	if size == 1 {
		c.pos = start
		return BoxHeader{}, fmt.Errorf("box %q: %w", h.TypeString(), ErrExtendedSize)
	}
	if size < BoxHeaderSize {
		c.pos = start
		return BoxHeader{}, fmt.Errorf("%w: declared size %d below header size", ErrMalformedBox, size)
	}
	return h, nil
}
