package f4m_test

import (
	"encoding/base64"
	"fmt"
	"testing"

	"hds2flv/internal/f4m"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testBootstrapBytes = []byte{0x00, 0x00, 0x00, 0x0c, 'a', 'b', 's', 't', 0xde, 0xad, 0xbe, 0xef}
	testMetadataBytes  = []byte{0x02, 0x00, 0x0a, 'o', 'n', 'M', 'e', 't', 'a', 'D', 'a', 't', 'a'}
)

func sampleManifestXML() []byte {
	bootstrap := base64.StdEncoding.EncodeToString(testBootstrapBytes)
	metadata := base64.StdEncoding.EncodeToString(testMetadataBytes)
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<manifest xmlns="http://ns.adobe.com/f4m/1.0">
  <id>event/stream</id>
  <streamType>recorded</streamType>
  <duration>182.5</duration>
  <baseURL>http://cdn.example.com/vod</baseURL>
  <bootstrapInfo profile="named" id="bootstrap1">
    %s
  </bootstrapInfo>
  <bootstrapInfo profile="named" id="bootstrap2" url="streams/hd.bootstrap"></bootstrapInfo>
  <media url="stream-800" bitrate="800" width="852" height="480" bootstrapInfoId="bootstrap1">
    <metadata>%s</metadata>
  </media>
  <media url="stream-2400" bitrate="2400" width="1280" height="720" bootstrapInfoId="bootstrap1"/>
</manifest>`, bootstrap, metadata))
}

func TestParseManifest(t *testing.T) {
	m, err := f4m.Parse(sampleManifestXML())
	require.NoError(t, err)

	assert.Equal(t, "event/stream", m.ID)
	assert.Equal(t, "recorded", m.StreamType)
	assert.False(t, m.Live())
	assert.InDelta(t, 182.5, m.Duration, 0.001)
	assert.Equal(t, "http://cdn.example.com/vod", m.BaseURL)

	require.Len(t, m.Media, 2)
	assert.Equal(t, "stream-800", m.Media[0].URL)
	assert.Equal(t, 800, m.Media[0].Bitrate)
	assert.Equal(t, 480, m.Media[0].Height)
	assert.Equal(t, "bootstrap1", m.Media[0].BootstrapInfoID)
	assert.False(t, m.Media[0].Protected())

	require.Len(t, m.BootstrapInfos, 2)
	assert.Equal(t, "bootstrap1", m.BootstrapInfos[0].ID)
	assert.False(t, m.BootstrapInfos[0].External())
	assert.True(t, m.BootstrapInfos[1].External())
	assert.Equal(t, "streams/hd.bootstrap", m.BootstrapInfos[1].URL)
}

func TestParseManifest20Namespace(t *testing.T) {
	doc := []byte(`<manifest xmlns="http://ns.adobe.com/f4m/2.0">
  <media href="stream.f4m" bitrate="1500"/>
</manifest>`)
	m, err := f4m.Parse(doc)
	require.NoError(t, err)
	require.Len(t, m.Media, 1)
	assert.Equal(t, "stream.f4m", m.Media[0].Href)
}

func TestParseManifestRejectsNonManifestXML(t *testing.T) {
	_, err := f4m.Parse([]byte(`<html><body>not found</body></html>`))
	require.Error(t, err)

	_, err = f4m.Parse([]byte(`{"not": "xml"}`))
	require.Error(t, err)
}

func TestSelectMedia(t *testing.T) {
	m, err := f4m.Parse(sampleManifestXML())
	require.NoError(t, err)

	t.Run("highest by default", func(t *testing.T) {
		md := m.SelectMedia(0)
		require.NotNil(t, md)
		assert.Equal(t, 2400, md.Bitrate)
	})

	t.Run("capped", func(t *testing.T) {
		md := m.SelectMedia(1000)
		require.NotNil(t, md)
		assert.Equal(t, 800, md.Bitrate)
	})

	t.Run("cap below everything picks lowest", func(t *testing.T) {
		md := m.SelectMedia(100)
		require.NotNil(t, md)
		assert.Equal(t, 800, md.Bitrate)
	})

	t.Run("no media", func(t *testing.T) {
		empty := &f4m.Manifest{}
		assert.Nil(t, empty.SelectMedia(0))
	})
}

func TestBootstrapFor(t *testing.T) {
	m, err := f4m.Parse(sampleManifestXML())
	require.NoError(t, err)

	b := m.BootstrapFor(&m.Media[0])
	require.NotNil(t, b)
	assert.Equal(t, "bootstrap1", b.ID)

	b = m.BootstrapFor(&f4m.Media{BootstrapInfoID: "bootstrap2"})
	require.NotNil(t, b)
	assert.Equal(t, "bootstrap2", b.ID)

	assert.Nil(t, m.BootstrapFor(&f4m.Media{BootstrapInfoID: "missing"}))

	b = m.BootstrapFor(&f4m.Media{})
	require.NotNil(t, b)
	assert.Equal(t, "bootstrap1", b.ID, "empty id falls back to the first entry")
}

func TestBootstrapInlineBytes(t *testing.T) {
	m, err := f4m.Parse(sampleManifestXML())
	require.NoError(t, err)

	data, err := m.BootstrapInfos[0].InlineBytes()
	require.NoError(t, err)
	assert.Equal(t, testBootstrapBytes, data, "interior whitespace must not break decoding")

	_, err = m.BootstrapInfos[1].InlineBytes()
	require.Error(t, err, "external bootstrap has no inline payload")

	_, err = (&f4m.BootstrapInfo{Value: "!!! not base64 !!!"}).InlineBytes()
	require.Error(t, err)
}

func TestMediaMetadataBytes(t *testing.T) {
	m, err := f4m.Parse(sampleManifestXML())
	require.NoError(t, err)

	data, err := m.Media[0].MetadataBytes()
	require.NoError(t, err)
	assert.Equal(t, testMetadataBytes, data)

	data, err = m.Media[1].MetadataBytes()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestManifestLive(t *testing.T) {
	live := &f4m.Manifest{StreamType: "LIVE"}
	assert.True(t, live.Live())
	rec := &f4m.Manifest{StreamType: "recorded"}
	assert.False(t, rec.Live())
}

func TestMediaProtected(t *testing.T) {
	md := &f4m.Media{DRMAdditionalHeaderID: "drm1"}
	assert.True(t, md.Protected())
}
