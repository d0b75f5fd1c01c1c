package filter

import "strings"

// Glob reports whether value matches pattern. Matching is anchored: the
// pattern must cover the whole value, not a substring of it. `*` matches any
// run of characters (including none), any number of stars is allowed, and a
// backslash escapes the next character so `\*` matches a literal star. An
// empty pattern matches only the empty value.
func Glob(pattern, value string) bool {
	segs := splitGlob(pattern)
	if len(segs) == 1 {
		// No wildcards at all: plain equality.
		return segs[0] == value
	}

	if !strings.HasPrefix(value, segs[0]) {
		return false
	}
	value = value[len(segs[0]):]

	last := segs[len(segs)-1]
	if !strings.HasSuffix(value, last) {
		return false
	}
	value = value[:len(value)-len(last)]

	// Middle segments must appear in order in what remains.
	for _, seg := range segs[1 : len(segs)-1] {
		if seg == "" {
			continue
		}
		idx := strings.Index(value, seg)
		if idx < 0 {
			return false
		}
		value = value[idx+len(seg):]
	}
	return true
}

// HasWildcard reports whether pattern contains an unescaped `*`.
func HasWildcard(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++ // skip escaped char
		case '*':
			return true
		}
	}
	return false
}

// Unescape resolves backslash escapes in a literal (wildcard-free) pattern.
func Unescape(pattern string) string {
	if !strings.ContainsRune(pattern, '\\') {
		return pattern
	}
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '\\' && i+1 < len(pattern) {
			i++
		}
		b.WriteByte(pattern[i])
	}
	return b.String()
}

// splitGlob splits pattern at unescaped stars into literal segments with
// escapes resolved. A pattern with n stars yields n+1 segments.
func splitGlob(pattern string) []string {
	segs := make([]string, 0, 2)
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			if i+1 < len(pattern) {
				i++
			}
			b.WriteByte(pattern[i])
		case '*':
			segs = append(segs, b.String())
			b.Reset()
		default:
			b.WriteByte(pattern[i])
		}
	}
	return append(segs, b.String())
}
