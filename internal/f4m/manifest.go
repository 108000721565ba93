package f4m

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode"
)

// Manifest is the root element of a Flash Media Manifest (F4M)
// document. Matching is by local name, so both the 1.0 and 2.0 Adobe
// namespaces parse.
type Manifest struct {
	XMLName        xml.Name        `xml:"manifest"`
	ID             string          `xml:"id"`
	StreamType     string          `xml:"streamType"`
	Duration       float64         `xml:"duration"`
	BaseURL        string          `xml:"baseURL"`
	Media          []Media         `xml:"media"`
	BootstrapInfos []BootstrapInfo `xml:"bootstrapInfo"`
}

// Live reports whether the manifest declares a live stream.
func (m *Manifest) Live() bool {
	return strings.EqualFold(strings.TrimSpace(m.StreamType), "live")
}

// Media describes one encoding of the stream.
type Media struct {
	URL                   string `xml:"url,attr"`
	Href                  string `xml:"href,attr"`
	Bitrate               int    `xml:"bitrate,attr"`
	Width                 int    `xml:"width,attr"`
	Height                int    `xml:"height,attr"`
	StreamID              string `xml:"streamId,attr"`
	BootstrapInfoID       string `xml:"bootstrapInfoId,attr"`
	DRMAdditionalHeaderID string `xml:"drmAdditionalHeaderId,attr"`
	Metadata              string `xml:"metadata"`
}

// Protected reports whether the media requires DRM handling.
func (m *Media) Protected() bool {
	return m.DRMAdditionalHeaderID != ""
}

// MetadataBytes decodes the media's base64 metadata element, the AMF
// payload of the stream's onMetaData script tag. An absent element
// yields nil.
func (m *Media) MetadataBytes() ([]byte, error) {
	raw := stripSpace(m.Metadata)
	if raw == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode media metadata: %w", err)
	}
	return data, nil
}

// BootstrapInfo carries the binary bootstrap box, either inline as
// base64 element text or by reference through the url attribute.
type BootstrapInfo struct {
	ID      string `xml:"id,attr"`
	Profile string `xml:"profile,attr"`
	URL     string `xml:"url,attr"`
	Value   string `xml:",chardata"`
}

// External reports whether the bootstrap must be fetched separately.
func (b *BootstrapInfo) External() bool {
	return b.URL != ""
}

// InlineBytes decodes the inline base64 payload.
func (b *BootstrapInfo) InlineBytes() ([]byte, error) {
	if b.External() {
		return nil, fmt.Errorf("bootstrap info %q is external, fetch %s instead", b.ID, b.URL)
	}
	data, err := base64.StdEncoding.DecodeString(stripSpace(b.Value))
	if err != nil {
		return nil, fmt.Errorf("failed to decode bootstrap info %q: %w", b.ID, err)
	}
	return data, nil
}

// Parse unmarshals an F4M document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest XML: %w", err)
	}
	return &m, nil
}

// SelectMedia picks the media entry to record: the highest bitrate at
// or under maxBitrate, or the highest overall when maxBitrate is zero.
// When every entry is above the cap the lowest one is returned, so a
// cap always yields a stream. Returns nil for a manifest without media.
func (m *Manifest) SelectMedia(maxBitrate int) *Media {
	var best *Media
	for i := range m.Media {
		md := &m.Media[i]
		if maxBitrate > 0 && md.Bitrate > maxBitrate {
			continue
		}
		if best == nil || md.Bitrate > best.Bitrate {
			best = md
		}
	}
	if best == nil {
		for i := range m.Media {
			md := &m.Media[i]
			if best == nil || md.Bitrate < best.Bitrate {
				best = md
			}
		}
	}
	return best
}

// BootstrapFor returns the bootstrap info a media entry points at, the
// first one when the entry names none, or nil when nothing matches.
func (m *Manifest) BootstrapFor(media *Media) *BootstrapInfo {
	if len(m.BootstrapInfos) == 0 {
		return nil
	}
	if media.BootstrapInfoID == "" {
		return &m.BootstrapInfos[0]
	}
	for i := range m.BootstrapInfos {
		if m.BootstrapInfos[i].ID == media.BootstrapInfoID {
			return &m.BootstrapInfos[i]
		}
	}
	return nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
