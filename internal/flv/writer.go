package flv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gflv "github.com/yapingcat/gomedia/go-flv"

	"hds2flv/internal/logger"
)

// tagHeaderSize is the fixed FLV tag header: type, data size, split
// timestamp and stream id.
const tagHeaderSize = 11

// ErrTruncatedTag reports a fragment payload that ends in the middle of
// an FLV tag.
var ErrTruncatedTag = errors.New("truncated flv tag")

// ErrInvalidTag reports a byte run that is not an FLV tag at all,
// usually a desynchronized or non-FLV mdat payload.
var ErrInvalidTag = errors.New("invalid flv tag")

// Writer assembles mdat payloads from consecutive HDS fragments into
// one playable FLV stream. Each payload carries complete FLV tags with
// their back-pointers; the writer re-times them to a zero-based
// timeline, keeps exactly one AVC and one AAC sequence header, and
// maintains correct PreviousTagSize chaining across fragment joins.
//
// Writer is not safe for concurrent use; the session feeds it fragments
// in stream order.
type Writer struct {
	w   io.Writer
	log logger.Logger

	headerWritten bool
	baseSet       bool
	base          uint32

	videoSeqSeen bool
	audioSeqSeen bool

	tags  int
	bytes int64
}

// NewWriter wraps an output stream. Passing a nil logger disables
// diagnostics.
func NewWriter(w io.Writer, log logger.Logger) *Writer {
	if log == nil {
		log = logger.Nop()
	}
	return &Writer{w: w, log: log}
}

// TagsWritten returns the number of tags emitted so far.
func (wr *Writer) TagsWritten() int { return wr.tags }

// BytesWritten returns the number of bytes emitted so far, header
// included.
func (wr *Writer) BytesWritten() int64 { return wr.bytes }

// WriteHeader emits the FLV file header: signature, version 1, the
// audio and video presence flags, data offset 9, and the zero
// PreviousTagSize0 that precedes the first tag.
func (wr *Writer) WriteHeader() error {
	if wr.headerWritten {
		return nil
	}
	header := []byte{
		'F', 'L', 'V', 0x01,
		0x05, // audio + video
		0x00, 0x00, 0x00, 0x09,
		0x00, 0x00, 0x00, 0x00, // PreviousTagSize0
	}
	if err := wr.write(header); err != nil {
		return fmt.Errorf("flv header: %w", err)
	}
	wr.headerWritten = true
	return nil
}

// WriteMetadata emits an AMF script payload, normally the manifest's
// onMetaData blob, as a script data tag at timestamp zero. An empty
// payload is a no-op.
func (wr *Writer) WriteMetadata(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if err := wr.WriteHeader(); err != nil {
		return err
	}
	tag := gflv.FlvTag{
		TagType:  uint8(gflv.SCRIPT_TAG),
		DataSize: uint32(len(payload)),
	}
	if err := wr.emit(tag, payload); err != nil {
		return fmt.Errorf("metadata tag: %w", err)
	}
	wr.log.Debugf("Wrote onMetaData script tag (%d bytes)", len(payload))
	return nil
}

// WriteFragment walks the FLV tags serialized in one mdat payload and
// appends them to the output. The first media timestamp seen becomes
// the output's zero point; AVC and AAC sequence headers repeated by
// later fragments are dropped.
func (wr *Writer) WriteFragment(mdat []byte) error {
	if err := wr.WriteHeader(); err != nil {
		return err
	}
	off := 0
	for off < len(mdat) {
		if len(mdat)-off < tagHeaderSize {
			return fmt.Errorf("%w: %d byte(s) of tag header at offset %d", ErrTruncatedTag, len(mdat)-off, off)
		}
		var tag gflv.FlvTag
		tag.Decode(mdat[off : off+tagHeaderSize])
		switch gflv.TagType(tag.TagType) {
		case gflv.AUDIO_TAG, gflv.VIDEO_TAG, gflv.SCRIPT_TAG:
		default:
			return fmt.Errorf("%w: tag type %d at offset %d", ErrInvalidTag, tag.TagType, off)
		}

		bodyStart := off + tagHeaderSize
		bodyEnd := bodyStart + int(tag.DataSize)
		// The 4-byte back-pointer follows every tag.
		if bodyEnd+4 > len(mdat) {
			return fmt.Errorf("%w: tag at offset %d declares %d data byte(s), %d left",
				ErrTruncatedTag, off, tag.DataSize, len(mdat)-bodyStart)
		}
		body := mdat[bodyStart:bodyEnd]
		off = bodyEnd + 4

		if wr.dropSequenceHeader(tag, body) {
			wr.log.Debugf("Dropping repeated sequence header (tag type %d)", tag.TagType)
			continue
		}
		wr.rebase(&tag)
		if err := wr.emit(tag, body); err != nil {
			return fmt.Errorf("tag at offset %d: %w", bodyStart-tagHeaderSize, err)
		}
	}
	return nil
}

// dropSequenceHeader reports whether the tag is an AVC or AAC sequence
// header the stream has already carried. The first one of each kind
// passes through, every repeat at a fragment start is skipped.
func (wr *Writer) dropSequenceHeader(tag gflv.FlvTag, body []byte) bool {
	switch gflv.TagType(tag.TagType) {
	case gflv.VIDEO_TAG:
		if len(body) < 5 {
			return false
		}
		var vtag gflv.VideoTag
		vtag.Decode(body[0:5])
		codec := gflv.FLV_VIDEO_CODEC_ID(vtag.CodecId)
		if codec != gflv.FLV_AVC && codec != gflv.FLV_HEVC {
			return false
		}
		if vtag.AVCPacketType != gflv.AVC_SEQUENCE_HEADER {
			return false
		}
		if wr.videoSeqSeen {
			return true
		}
		wr.videoSeqSeen = true
	case gflv.AUDIO_TAG:
		if len(body) < 2 {
			return false
		}
		var atag gflv.AudioTag
		if err := atag.Decode(body[0:2]); err != nil {
			return false
		}
		if gflv.FLV_SOUND_FORMAT(atag.SoundFormat) != gflv.FLV_AAC {
			return false
		}
		if atag.AACPacketType != gflv.AAC_SEQUENCE_HEADER {
			return false
		}
		if wr.audioSeqSeen {
			return true
		}
		wr.audioSeqSeen = true
	}
	return false
}

// rebase shifts a media tag's timestamp so the output starts at zero.
// The 32-bit time is split across the tag's 24-bit field and the
// extension byte. Script tags keep timestamp zero.
func (wr *Writer) rebase(tag *gflv.FlvTag) {
	if gflv.TagType(tag.TagType) == gflv.SCRIPT_TAG {
		tag.Timestamp = 0
		tag.TimestampExtended = 0
		return
	}
	ts := tag.Timestamp&0xffffff | uint32(tag.TimestampExtended)<<24
	if !wr.baseSet {
		wr.baseSet = true
		wr.base = ts
	}
	if ts >= wr.base {
		ts -= wr.base
	} else {
		// A fragment behind the zero point, seen right after joining a
		// live stream mid-GOP. Clamp instead of wrapping around.
		ts = 0
	}
	tag.Timestamp = ts & 0xffffff
	tag.TimestampExtended = uint8(ts >> 24)
}

// emit writes one tag header, its body and the back-pointer.
func (wr *Writer) emit(tag gflv.FlvTag, body []byte) error {
	tag.DataSize = uint32(len(body))
	tag.StreamID = 0
	if err := wr.write(tag.Encode()); err != nil {
		return err
	}
	if err := wr.write(body); err != nil {
		return err
	}
	var prev [4]byte
	binary.BigEndian.PutUint32(prev[:], tagHeaderSize+uint32(len(body)))
	if err := wr.write(prev[:]); err != nil {
		return err
	}
	wr.tags++
	return nil
}

func (wr *Writer) write(p []byte) error {
	n, err := wr.w.Write(p)
	wr.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}
