package parser

// span is a half-open byte range [start, end) of a line
type span struct {
	start, end int
}

// consumed is the set of line ranges already claimed by an extraction step.
// Steps never rewrite the line; they search a masked view and return a new set.
type consumed []span

// with returns a copy of c that also claims [start, end)
func (c consumed) with(start, end int) consumed {
	out := make(consumed, len(c), len(c)+1)
	copy(out, c)
	return append(out, span{start: start, end: end})
}

// mask returns line with every claimed byte replaced by a space, so match
// offsets in the result are offsets in line.
func (c consumed) mask(line string) string {
	if len(c) == 0 {
		return line
	}
	b := []byte(line)
	for _, s := range c {
		start, end := max(s.start, 0), min(s.end, len(b))
		for i := start; i < end; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

// nextToken returns the bounds of the first whitespace-delimited token of s
// at or after from, or ok=false when none remains.
func nextToken(s string, from int) (start, end int, ok bool) {
	start = from
	for start < len(s) && isSpace(s[start]) {
		start++
	}
	if start >= len(s) {
		return 0, 0, false
	}
	end = start
	for end < len(s) && !isSpace(s[end]) {
		end++
	}
	return start, end, true
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}
