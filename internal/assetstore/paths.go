package assetstore

import (
	"net/url"
	"path"
	"strings"
)

// GuessExt picks a file extension from the declared media type and the
// remote URL. Well-known video and image types win; otherwise the URL's own
// extension is used, falling back to "bin".
func GuessExt(mediaType, remoteURL string) string {
	mime := strings.ToLower(mediaType)
	u := strings.ToLower(stripQuery(remoteURL))
	has := func(token, suffix string) bool {
		return strings.Contains(mime, token) || strings.HasSuffix(u, suffix)
	}
	switch {
	case has("mp4", ".mp4"):
		return "mp4"
	case has("webm", ".webm"):
		return "webm"
	case has("png", ".png"):
		return "png"
	case has("jpeg", ".jpeg"), has("jpg", ".jpg"):
		return "jpg"
	case has("gif", ".gif"):
		return "gif"
	}
	ext := strings.TrimPrefix(path.Ext(urlPath(u)), ".")
	if ext == "" || len(ext) > 5 || !isAlnum(ext) {
		return "bin"
	}
	return ext
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

func urlPath(raw string) string {
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return raw
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// safeName maps an asset id to a file-system-safe stem.
func safeName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "asset"
	}
	return name
}
