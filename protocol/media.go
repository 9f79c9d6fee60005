package protocol

import (
	"net/url"
	"strings"
)

// MediaKind says how a file message's URL should be presented.
type MediaKind int

const (
	MediaLink MediaKind = iota
	MediaImage
	MediaVideo
)

var (
	imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}
	videoSuffixes = []string{".mp4", ".webm", ".mov"}
)

// ClassifyURL inspects the URL's path extension, case-insensitively.
// Anything that is neither a known image nor video suffix is a plain link.
func ClassifyURL(raw string) MediaKind {
	p := strings.ToLower(urlPath(raw))
	for _, s := range imageSuffixes {
		if strings.HasSuffix(p, s) {
			return MediaImage
		}
	}
	for _, s := range videoSuffixes {
		if strings.HasSuffix(p, s) {
			return MediaVideo
		}
	}
	return MediaLink
}

// FileLabel returns the trailing path segment of a media URL, used as the
// display name for generic downloads.
func FileLabel(raw string) string {
	p := urlPath(raw)
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if p == "" {
		return raw
	}
	return p
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return u.Path
	}
	// Not a parsable URL; strip query/fragment by hand and classify the rest.
	p := raw
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return p
}
