package extractor

import (
	"path"
	"strings"
)

// DestinationKey joins prefix and member into an object key. Runs of "/" are
// collapsed and a leading "/" is dropped, so root level members keep their
// bare name.
func DestinationKey(prefix, member string) string {
	return normalizeKey(prefix + "/" + member)
}

// SourcePrefix is the directory part of an object key, empty at the root.
func SourcePrefix(key string) string {
	dir := path.Dir(key)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func normalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	prevSlash := false
	// Byte-wise: member names are not always valid UTF-8 (CP437, GBK).
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return strings.TrimPrefix(b.String(), "/")
}
