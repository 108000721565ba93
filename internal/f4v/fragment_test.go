package f4v_test

import (
	"testing"

	"hds2flv/internal/f4v"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMdatPayload(t *testing.T) {
	frag := append(box("afra", []byte{0x00, 0x00, 0x00, 0x00}), box("mdat", []byte("flv tag bytes"))...)

	payload, err := f4v.MdatPayload(frag)
	require.NoError(t, err)
	assert.Equal(t, []byte("flv tag bytes"), payload)

	// Returned payload is a copy.
	frag[len(frag)-1] = 0
	assert.Equal(t, []byte("flv tag bytes"), payload)
}

func TestMdatPayloadTruncated(t *testing.T) {
	// The mdat declares 64 payload bytes but the buffer carries 5. Live
	// origins cut the last fragment like this, so the partial payload
	// comes back.
	var w wire
	w.u32(64 + 8)
	w.WriteString("mdat")
	w.Write([]byte("tags!"))

	payload, err := f4v.MdatPayload(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte("tags!"), payload)
}

func TestMdatPayloadMissing(t *testing.T) {
	_, err := f4v.MdatPayload(box("afra", []byte{0x01}))
	require.ErrorIs(t, err, f4v.ErrNoMdat)

	_, err = f4v.MdatPayload(nil)
	require.ErrorIs(t, err, f4v.ErrNoMdat)
}

func TestMdatPayloadOverrunLeadingBox(t *testing.T) {
	// A non-mdat box overrunning the buffer cannot be skipped.
	var w wire
	w.u32(100)
	w.WriteString("afra")
	w.Write([]byte{0x01, 0x02})

	_, err := f4v.MdatPayload(w.Bytes())
	require.ErrorIs(t, err, f4v.ErrOutOfBounds)
}

func TestMdatPayloadSkipsLeadingBoxes(t *testing.T) {
	frag := box("afra", make([]byte, 16))
	frag = append(frag, box("moof", []byte{0xaa})...)
	frag = append(frag, box("mdat", []byte{0x08, 0x09})...)

	payload, err := f4v.MdatPayload(frag)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x09}, payload)
}
