package cache

import (
	"strconv"
	"strings"

	"github.com/LavishGent/imgcache/internal/types"
)

var keySanitizer = strings.NewReplacer(
	":", "_",
	"/", "_",
	"?", "_",
	"#", "_",
	"%", "_",
	"[", "_",
	"]", "_",
)

// DeriveKey returns the cache key for url rendered with s:
// <sanitized url>-<quality>-<width>-<height>.<format>
func DeriveKey(url string, s types.Settings) string {
	var b strings.Builder
	b.Grow(len(url) + 32)
	b.WriteString(keySanitizer.Replace(url))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(s.Quality))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(s.Width))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(s.Height))
	b.WriteByte('.')
	b.WriteString(string(s.Format))
	return b.String()
}
