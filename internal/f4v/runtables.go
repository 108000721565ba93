package f4v

import "fmt"

// Discontinuity indicator values carried by fragment run entries with a
// zero duration.
const (
	DiscontinuityEnd        uint8 = 0 // end of the presentation
	DiscontinuityNumbering  uint8 = 1 // gap in fragment numbering
	DiscontinuityTimestamps uint8 = 2 // gap in timestamps
	DiscontinuityBoth       uint8 = 3 // gaps in both
)

// SegmentRunEntry describes a run of segments that all hold the same
// number of fragments.
type SegmentRunEntry struct {
	FirstSegment        uint32
	FragmentsPerSegment uint32
}

// SegmentRunTable is the decoded form of an asrt box.
type SegmentRunTable struct {
	Version                    uint8
	Flags                      [3]byte
	QualitySegmentURLModifiers []string
	SegmentRunEntries          []SegmentRunEntry
}

// FragmentRunEntry describes a run of fragments of equal duration
// starting at FirstFragment, or a marker when FragmentDuration is zero.
type FragmentRunEntry struct {
	FirstFragment          uint32
	FirstFragmentTimestamp uint64
	FragmentDuration       uint32
	// DiscontinuityIndicator is on the wire only when FragmentDuration
	// is zero. It is nil in every other entry, so the two entry kinds
	// cannot be conflated.
	DiscontinuityIndicator *uint8
}

// EndOfStream reports whether the entry marks the end of the
// presentation.
func (e FragmentRunEntry) EndOfStream() bool {
	return e.FragmentDuration == 0 &&
		e.DiscontinuityIndicator != nil &&
		*e.DiscontinuityIndicator == DiscontinuityEnd
}

// FragmentRunTable is the decoded form of an afrt box.
type FragmentRunTable struct {
	Version                    uint8
	Flags                      [3]byte
	TimeScale                  uint32
	QualitySegmentURLModifiers []string
	FragmentRunEntries         []FragmentRunEntry
}

// readStringTable decodes a u8 count followed by that many
// null-terminated strings.
func readStringTable(c *Cursor, what string) ([]string, error) {
	count, err := c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%s count: %w", what, err)
	}
	table := []string{}
	for i := 0; i < int(count); i++ {
		s, err := c.ReadString()
		if err != nil {
			return nil, fmt.Errorf("%s entry %d: %w", what, i, err)
		}
		table = append(table, s)
	}
	return table, nil
}

// ReadSegmentRunTable decodes one complete asrt box at the cursor.
// The declared box size bounds the payload, so trailing padding inside
// the box is skipped and an overlong table fails as a truncation.
func ReadSegmentRunTable(c *Cursor) (*SegmentRunTable, error) {
	h, err := ReadBoxHeader(c)
	if err != nil {
		return nil, fmt.Errorf("segment run table: %w", err)
	}
	if h.Type != TypeASRT {
		return nil, fmt.Errorf("segment run table: %w: want %q, got %q", ErrUnexpectedBox, "asrt", h.TypeString())
	}
	payload, err := c.ReadBytes(int(h.PayloadSize()))
	if err != nil {
		return nil, fmt.Errorf("asrt payload: %w", err)
	}
	return decodeSegmentRunTable(NewCursor(payload))
}

func decodeSegmentRunTable(c *Cursor) (*SegmentRunTable, error) {
	t := &SegmentRunTable{}
	var err error
	if t.Version, err = c.ReadUint8(); err != nil {
		return nil, fmt.Errorf("asrt version: %w", err)
	}
	flags, err := c.ReadBytes(3)
	if err != nil {
		return nil, fmt.Errorf("asrt flags: %w", err)
	}
	copy(t.Flags[:], flags)
	if t.QualitySegmentURLModifiers, err = readStringTable(c, "asrt quality modifier"); err != nil {
		return nil, err
	}
	count, err := c.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("segment run entry count: %w", err)
	}
	t.SegmentRunEntries = []SegmentRunEntry{}
	for i := uint32(0); i < count; i++ {
		var e SegmentRunEntry
		if e.FirstSegment, err = c.ReadUint32(); err != nil {
			return nil, fmt.Errorf("segment run entry %d firstSegment: %w", i, err)
		}
		if e.FragmentsPerSegment, err = c.ReadUint32(); err != nil {
			return nil, fmt.Errorf("segment run entry %d fragmentsPerSegment: %w", i, err)
		}
		t.SegmentRunEntries = append(t.SegmentRunEntries, e)
	}
	return t, nil
}

// ReadFragmentRunTable decodes one complete afrt box at the cursor.
func ReadFragmentRunTable(c *Cursor) (*FragmentRunTable, error) {
	h, err := ReadBoxHeader(c)
	if err != nil {
		return nil, fmt.Errorf("fragment run table: %w", err)
	}
	if h.Type != TypeAFRT {
		return nil, fmt.Errorf("fragment run table: %w: want %q, got %q", ErrUnexpectedBox, "afrt", h.TypeString())
	}
	payload, err := c.ReadBytes(int(h.PayloadSize()))
	if err != nil {
		return nil, fmt.Errorf("afrt payload: %w", err)
	}
	return decodeFragmentRunTable(NewCursor(payload))
}

func decodeFragmentRunTable(c *Cursor) (*FragmentRunTable, error) {
	t := &FragmentRunTable{}
	var err error
	if t.Version, err = c.ReadUint8(); err != nil {
		return nil, fmt.Errorf("afrt version: %w", err)
	}
	flags, err := c.ReadBytes(3)
	if err != nil {
		return nil, fmt.Errorf("afrt flags: %w", err)
	}
	copy(t.Flags[:], flags)
	if t.TimeScale, err = c.ReadUint32(); err != nil {
		return nil, fmt.Errorf("afrt timescale: %w", err)
	}
	if t.QualitySegmentURLModifiers, err = readStringTable(c, "afrt quality modifier"); err != nil {
		return nil, err
	}
	count, err := c.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("fragment run entry count: %w", err)
	}
	t.FragmentRunEntries = []FragmentRunEntry{}
	for i := uint32(0); i < count; i++ {
		var e FragmentRunEntry
		if e.FirstFragment, err = c.ReadUint32(); err != nil {
			return nil, fmt.Errorf("fragment run entry %d firstFragment: %w", i, err)
		}
		if e.FirstFragmentTimestamp, err = c.ReadUint64(); err != nil {
			return nil, fmt.Errorf("fragment run entry %d firstFragmentTimestamp: %w", i, err)
		}
		if e.FragmentDuration, err = c.ReadUint32(); err != nil {
			return nil, fmt.Errorf("fragment run entry %d fragmentDuration: %w", i, err)
		}
		if e.FragmentDuration == 0 {
			d, err := c.ReadUint8()
			if err != nil {
				return nil, fmt.Errorf("fragment run entry %d discontinuityIndicator: %w", i, err)
			}
			e.DiscontinuityIndicator = &d
		}
		t.FragmentRunEntries = append(t.FragmentRunEntries, e)
	}
	return t, nil
}
