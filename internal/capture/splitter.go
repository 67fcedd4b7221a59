package capture

import (
	"bytes"
	"strings"
)

// splitter cuts a byte stream into reports. A report ends where the next
// header line starts or when the stream is flushed.
type splitter struct {
	marker  string
	partial []byte
	lines   []string
}

func newSplitter(marker string) *splitter {
	return &splitter{marker: marker}
}

// write consumes data and returns every report completed by it
func (s *splitter) write(data []byte) []string {
	var reports []string
	s.partial = append(s.partial, data...)
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		line := string(s.partial[:i])
		s.partial = s.partial[i+1:]
		if report, ok := s.addLine(line); ok {
			reports = append(reports, report)
		}
	}
	// let the backing array go once it has been fully consumed
	if len(s.partial) == 0 {
		s.partial = nil
	}
	return reports
}

func (s *splitter) addLine(line string) (string, bool) {
	var report string
	var ok bool
	if s.marker != "" && strings.HasPrefix(strings.TrimSpace(line), s.marker) && s.hasContent() {
		report, ok = s.take()
	}
	s.lines = append(s.lines, line)
	return report, ok
}

// flush returns whatever is buffered, including an unterminated last line
func (s *splitter) flush() (string, bool) {
	if len(s.partial) > 0 {
		s.lines = append(s.lines, string(s.partial))
		s.partial = nil
	}
	if !s.hasContent() {
		s.lines = nil
		return "", false
	}
	return s.take()
}

// pending reports whether anything is buffered
func (s *splitter) pending() bool {
	return len(s.partial) > 0 || s.hasContent()
}

func (s *splitter) hasContent() bool {
	for _, l := range s.lines {
		if strings.TrimSpace(l) != "" {
			return true
		}
	}
	return false
}

func (s *splitter) take() (string, bool) {
	report := strings.Join(s.lines, "\n") + "\n"
	s.lines = nil
	return report, true
}
