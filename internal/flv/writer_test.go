package flv_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	gflv "github.com/yapingcat/gomedia/go-flv"

	"hds2flv/internal/flv"
	"hds2flv/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tag serializes one FLV tag with its back-pointer, the layout HDS
// fragments carry inside mdat.
func tag(tagType uint8, ts uint32, body []byte) []byte {
	t := gflv.FlvTag{
		TagType:           tagType,
		DataSize:          uint32(len(body)),
		Timestamp:         ts & 0xffffff,
		TimestampExtended: uint8(ts >> 24),
	}
	out := append(t.Encode(), body...)
	var prev [4]byte
	binary.BigEndian.PutUint32(prev[:], 11+uint32(len(body)))
	return append(out, prev[:]...)
}

func avcSeqHeader() []byte { return []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x64} }
func avcFrame(key bool) []byte {
	b := []byte{0x27, 0x01, 0x00, 0x00, 0x00, 0xaa, 0xbb}
	if key {
		b[0] = 0x17
	}
	return b
}
func aacSeqHeader() []byte { return []byte{0xaf, 0x00, 0x12, 0x10} }
func aacFrame() []byte     { return []byte{0xaf, 0x01, 0xcc, 0xdd} }

type parsedTag struct {
	tagType uint8
	ts      uint32
	body    []byte
	prev    uint32
}

// parseOutput re-reads everything the writer emitted: the 13-byte file
// header, then tags with their back-pointers.
func parseOutput(t *testing.T, data []byte) []parsedTag {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 13)
	require.Equal(t, []byte{'F', 'L', 'V', 0x01, 0x05, 0, 0, 0, 9, 0, 0, 0, 0}, data[:13])

	var tags []parsedTag
	off := 13
	for off < len(data) {
		require.GreaterOrEqual(t, len(data)-off, 11, "tag header at offset %d", off)
		var ft gflv.FlvTag
		ft.Decode(data[off : off+11])
		end := off + 11 + int(ft.DataSize)
		require.GreaterOrEqual(t, len(data), end+4, "tag body at offset %d", off)
		tags = append(tags, parsedTag{
			tagType: ft.TagType,
			ts:      ft.Timestamp | uint32(ft.TimestampExtended)<<24,
			body:    data[off+11 : end],
			prev:    binary.BigEndian.Uint32(data[end : end+4]),
		})
		off = end + 4
	}
	return tags
}

func TestWriterHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf, logger.Nop())
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteHeader())
	assert.Equal(t, 13, buf.Len())
	assert.Equal(t, int64(13), w.BytesWritten())
}

func TestWriterMetadata(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf, logger.Nop())

	payload := []byte{0x02, 0x00, 0x0a, 'o', 'n', 'M', 'e', 't', 'a', 'D', 'a', 't', 'a'}
	require.NoError(t, w.WriteMetadata(payload))
	require.NoError(t, w.WriteMetadata(nil), "empty metadata is a no-op")

	tags := parseOutput(t, buf.Bytes())
	require.Len(t, tags, 1)
	assert.Equal(t, uint8(gflv.SCRIPT_TAG), tags[0].tagType)
	assert.Equal(t, uint32(0), tags[0].ts)
	assert.Equal(t, payload, tags[0].body)
	assert.Equal(t, uint32(11+len(payload)), tags[0].prev)
	assert.Equal(t, 1, w.TagsWritten())
}

func TestWriterRebasesTimestamps(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf, logger.Nop())

	// A live join: the fragment's timeline starts at 50000ms.
	var mdat []byte
	mdat = append(mdat, tag(uint8(gflv.VIDEO_TAG), 50000, avcSeqHeader())...)
	mdat = append(mdat, tag(uint8(gflv.AUDIO_TAG), 50000, aacSeqHeader())...)
	mdat = append(mdat, tag(uint8(gflv.VIDEO_TAG), 50040, avcFrame(true))...)
	mdat = append(mdat, tag(uint8(gflv.AUDIO_TAG), 50023, aacFrame())...)
	require.NoError(t, w.WriteFragment(mdat))

	tags := parseOutput(t, buf.Bytes())
	require.Len(t, tags, 4)
	assert.Equal(t, uint32(0), tags[0].ts)
	assert.Equal(t, uint32(0), tags[1].ts)
	assert.Equal(t, uint32(40), tags[2].ts)
	assert.Equal(t, uint32(23), tags[3].ts)
}

func TestWriterExtendedTimestamp(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf, logger.Nop())

	// Past the 24-bit boundary the extension byte carries the high bits.
	const early = uint32(0x00fffff0)
	const late = uint32(0x01000010)
	var mdat []byte
	mdat = append(mdat, tag(uint8(gflv.VIDEO_TAG), early, avcFrame(true))...)
	mdat = append(mdat, tag(uint8(gflv.VIDEO_TAG), late, avcFrame(false))...)
	require.NoError(t, w.WriteFragment(mdat))

	tags := parseOutput(t, buf.Bytes())
	require.Len(t, tags, 2)
	assert.Equal(t, uint32(0), tags[0].ts)
	assert.Equal(t, late-early, tags[1].ts)
}

func TestWriterDropsRepeatedSequenceHeaders(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf, logger.Nop())

	var frag1 []byte
	frag1 = append(frag1, tag(uint8(gflv.VIDEO_TAG), 0, avcSeqHeader())...)
	frag1 = append(frag1, tag(uint8(gflv.AUDIO_TAG), 0, aacSeqHeader())...)
	frag1 = append(frag1, tag(uint8(gflv.VIDEO_TAG), 40, avcFrame(true))...)
	require.NoError(t, w.WriteFragment(frag1))

	// Every fragment restates the sequence headers; only the first copy
	// may survive.
	var frag2 []byte
	frag2 = append(frag2, tag(uint8(gflv.VIDEO_TAG), 4000, avcSeqHeader())...)
	frag2 = append(frag2, tag(uint8(gflv.AUDIO_TAG), 4000, aacSeqHeader())...)
	frag2 = append(frag2, tag(uint8(gflv.VIDEO_TAG), 4000, avcFrame(true))...)
	frag2 = append(frag2, tag(uint8(gflv.AUDIO_TAG), 4010, aacFrame())...)
	require.NoError(t, w.WriteFragment(frag2))

	tags := parseOutput(t, buf.Bytes())
	require.Len(t, tags, 5)
	assert.Equal(t, uint8(gflv.VIDEO_TAG), tags[3].tagType)
	assert.Equal(t, uint32(4000), tags[3].ts)
	assert.Equal(t, avcFrame(true), tags[3].body)
	assert.Equal(t, uint8(gflv.AUDIO_TAG), tags[4].tagType)
	assert.Equal(t, 5, w.TagsWritten())
}

func TestWriterTruncatedTag(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf, logger.Nop())

	full := tag(uint8(gflv.VIDEO_TAG), 0, avcFrame(true))

	t.Run("inside the header", func(t *testing.T) {
		err := flv.NewWriter(&bytes.Buffer{}, logger.Nop()).WriteFragment(full[:7])
		require.ErrorIs(t, err, flv.ErrTruncatedTag)
	})

	t.Run("inside the body", func(t *testing.T) {
		err := w.WriteFragment(full[:len(full)-6])
		require.ErrorIs(t, err, flv.ErrTruncatedTag)
		assert.Contains(t, err.Error(), "offset 0")
	})
}

func TestWriterRejectsGarbage(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf, logger.Nop())

	mdat := tag(0x07, 0, []byte{1, 2, 3})
	err := w.WriteFragment(mdat)
	require.ErrorIs(t, err, flv.ErrInvalidTag)
}
