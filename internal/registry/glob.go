package registry

import (
	"regexp"
	"strings"
	"sync"
)

var (
	globCacheMu sync.Mutex
	globCache   = map[string]*regexp.Regexp{}
)

// compileGlob translates the three-token glob language into a
// compiled, cached regexp: '*' matches any run excluding '/', '**' matches
// any run including '/', '?' matches exactly one char, every other regex
// metacharacter is treated as a literal.
func compileGlob(pattern string) *regexp.Regexp {
	globCacheMu.Lock()
	defer globCacheMu.Unlock()
	if re, ok := globCache[pattern]; ok {
		return re
	}

	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	re := regexp.MustCompile(b.String())
	globCache[pattern] = re
	return re
}
