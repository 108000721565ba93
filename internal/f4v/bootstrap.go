package f4v

import (
	"fmt"

	"hds2flv/internal/logger"
)

// BootstrapInfo is the decoded form of an abst box. Every field the box
// carries is kept, in wire order, so consumers can rebuild fragment
// addresses and timelines without re-reading the payload.
type BootstrapInfo struct {
	Version              uint8
	Flags                [3]byte
	BootstrapInfoVersion uint32
	// Profile packs the profile, live and update bits exactly as found
	// on the wire. Bit decomposition is left to consumers.
	Profile             uint8
	TimeScale           uint32
	CurrentMediaTime    uint64
	SmpteTimeCodeOffset uint64
	MovieIdentifier     string
	ServerEntryTable    []string
	QualityEntryTable   []string
	DrmData             string
	Metadata            string
	SegmentRunTables    []*SegmentRunTable
	FragmentRunTables   []*FragmentRunTable
}

// Decoder decodes bootstrap boxes and reports progress through an
// optional diagnostics logger. It holds no other state, so a single
// decoder is safe for concurrent use.
type Decoder struct {
	log logger.Logger
}

// NewDecoder returns a decoder logging through log. Passing nil
// disables diagnostics.
func NewDecoder(log logger.Logger) *Decoder {
	if log == nil {
		log = logger.Nop()
	}
	return &Decoder{log: log}
}

// DecodeBootstrap decodes a complete abst box without diagnostics. It
// is shorthand for NewDecoder(nil).DecodeBootstrap.
func DecodeBootstrap(data []byte) (*BootstrapInfo, error) {
	return NewDecoder(nil).DecodeBootstrap(data)
}

// DecodeBootstrap decodes a complete abst box: header, fixed fields,
// string tables and the nested run table boxes. The declared box size
// bounds the payload, so bytes after the box are ignored and any
// truncation inside it surfaces as ErrOutOfBounds with field context.
func (d *Decoder) DecodeBootstrap(data []byte) (*BootstrapInfo, error) {
	c := NewCursor(data)
	h, err := ReadBoxHeader(c)
	if err != nil {
		return nil, fmt.Errorf("bootstrap box: %w", err)
	}
	if h.Type != TypeABST {
		return nil, fmt.Errorf("bootstrap box: %w: want %q, got %q", ErrUnexpectedBox, "abst", h.TypeString())
	}
	payload, err := c.ReadBytes(int(h.PayloadSize()))
	if err != nil {
		return nil, fmt.Errorf("abst payload: %w", err)
	}
	d.log.Debugf("decoding abst box, payload %d bytes", len(payload))
	return d.decodeBootstrapPayload(NewCursor(payload))
}

func (d *Decoder) decodeBootstrapPayload(c *Cursor) (*BootstrapInfo, error) {
	b := &BootstrapInfo{}
	var err error
	if b.Version, err = c.ReadUint8(); err != nil {
		return nil, fmt.Errorf("abst version: %w", err)
	}
	flags, err := c.ReadBytes(3)
	if err != nil {
		return nil, fmt.Errorf("abst flags: %w", err)
	}
	copy(b.Flags[:], flags)
	if b.BootstrapInfoVersion, err = c.ReadUint32(); err != nil {
		return nil, fmt.Errorf("bootstrapInfoVersion: %w", err)
	}
	if b.Profile, err = c.ReadUint8(); err != nil {
		return nil, fmt.Errorf("profile byte: %w", err)
	}
	if b.TimeScale, err = c.ReadUint32(); err != nil {
		return nil, fmt.Errorf("timescale: %w", err)
	}
	if b.CurrentMediaTime, err = c.ReadUint64(); err != nil {
		return nil, fmt.Errorf("currentMediaTime: %w", err)
	}
	if b.SmpteTimeCodeOffset, err = c.ReadUint64(); err != nil {
		return nil, fmt.Errorf("smpteTimeCodeOffset: %w", err)
	}
	if b.MovieIdentifier, err = c.ReadString(); err != nil {
		return nil, fmt.Errorf("movieIdentifier: %w", err)
	}
	if b.ServerEntryTable, err = readStringTable(c, "server entry"); err != nil {
		return nil, err
	}
	if b.QualityEntryTable, err = readStringTable(c, "quality entry"); err != nil {
		return nil, err
	}
	if b.DrmData, err = c.ReadString(); err != nil {
		return nil, fmt.Errorf("drmData: %w", err)
	}
	if b.Metadata, err = c.ReadString(); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	segCount, err := c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("segment run table count: %w", err)
	}
	b.SegmentRunTables = []*SegmentRunTable{}
	for i := 0; i < int(segCount); i++ {
		t, err := ReadSegmentRunTable(c)
		if err != nil {
			return nil, fmt.Errorf("segment run table %d: %w", i, err)
		}
		b.SegmentRunTables = append(b.SegmentRunTables, t)
	}

	fragCount, err := c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("fragment run table count: %w", err)
	}
	b.FragmentRunTables = []*FragmentRunTable{}
	for i := 0; i < int(fragCount); i++ {
		t, err := ReadFragmentRunTable(c)
		if err != nil {
			return nil, fmt.Errorf("fragment run table %d: %w", i, err)
		}
		b.FragmentRunTables = append(b.FragmentRunTables, t)
	}

	d.log.Debugf("decoded bootstrap %q: media time %d/%d, %d segment run table(s), %d fragment run table(s)",
		b.MovieIdentifier, b.CurrentMediaTime, b.TimeScale, len(b.SegmentRunTables), len(b.FragmentRunTables))
	return b, nil
}
