package hds

import (
	"fmt"
	"net/url"
	"strings"
)

// BaseURL determines what media paths resolve against: the manifest's
// explicit baseURL element when present, otherwise the manifest
// location minus its last path element, query dropped.
func BaseURL(manifestLocation, explicit string) (string, error) {
	if explicit != "" {
		return strings.TrimSuffix(explicit, "/"), nil
	}
	u, err := url.Parse(manifestLocation)
	if err != nil {
		return "", fmt.Errorf("failed to parse manifest location '%s': %w", manifestLocation, err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	if i := strings.LastIndex(u.Path, "/"); i >= 0 {
		u.Path = u.Path[:i]
	}
	return u.String(), nil
}

// FragmentURL builds the address of one fragment. The segment and
// fragment suffix is concatenated directly onto the media name, with
// the quality modifier between them and any query string kept behind
// the suffix:
//
//	base http://cdn/vod, media stream-800?auth=k, frag 3 of seg 1
//	  -> http://cdn/vod/stream-800Seg1-Frag3?auth=k
//
// An absolute media URL bypasses the base.
func FragmentURL(base, media, modifier string, segment, fragment uint32) string {
	var query string
	if i := strings.Index(media, "?"); i >= 0 {
		query = media[i:]
		media = media[:i]
	}
	target := media
	if !strings.Contains(media, "://") {
		target = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(media, "/")
	}
	return fmt.Sprintf("%s%sSeg%d-Frag%d%s", target, modifier, segment, fragment, query)
}

// ResolveRef resolves a possibly relative reference, like an external
// bootstrap URL, against the manifest's base.
func ResolveRef(base, ref string) (string, error) {
	if strings.Contains(ref, "://") {
		return ref, nil
	}
	baseURL, err := url.Parse(strings.TrimSuffix(base, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL '%s': %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("failed to parse reference '%s': %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
