package script

import (
	"bytes"
	"strings"
)

// Compress shrinks Lua source for upload: comments and trailing
// whitespace are removed from each line and lines left empty are dropped.
// Comment markers inside string literals are kept, block comments
// (--[[ ]], --[==[ ]==]) may span lines, and lines inside a long string
// are copied unchanged.
func Compress(src []byte) []byte {
	var (
		out bytes.Buffer
		sc  = scanner{level: -1}
	)
	for _, line := range strings.Split(string(src), "\n") {
		inString := sc.inString()
		line = sc.strip(line)
		if !sc.inString() {
			line = strings.TrimRight(line, " \t\r")
			if !inString && strings.TrimSpace(line) == "" {
				continue
			}
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// scanner tracks long brackets that carry over from one line to the next.
type scanner struct {
	// level is the number of '=' in the open long bracket, or -1 outside one.
	level   int
	comment bool
}

func (s *scanner) inString() bool { return s.level >= 0 && !s.comment }

// strip removes comments from line. A comment is replaced by a single
// space so the tokens on either side stay apart.
func (s *scanner) strip(line string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(line); {
		if s.level >= 0 {
			closer := "]" + strings.Repeat("=", s.level) + "]"
			j := strings.Index(line[i:], closer)
			if j < 0 {
				if !s.comment {
					b.WriteString(line[i:])
				}
				return b.String()
			}
			end := i + j + len(closer)
			if s.comment {
				b.WriteByte(' ')
			} else {
				b.WriteString(line[i:end])
			}
			s.level, s.comment = -1, false
			i = end
			continue
		}

		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(line) {
				b.WriteByte(c)
				i++
				c = line[i]
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			if n := longBracket(line[i:]); n >= 0 {
				s.level = n
				b.WriteString(line[i : i+n+2])
				i += n + 2
				continue
			}
		case c == '-' && strings.HasPrefix(line[i:], "--"):
			if n := longBracket(line[i+2:]); n >= 0 {
				s.level, s.comment = n, true
				i += n + 4
				continue
			}
			return b.String()
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// longBracket returns the level of the opening long bracket at the start
// of s, or -1 if s does not start with one.
func longBracket(s string) int {
	if !strings.HasPrefix(s, "[") {
		return -1
	}
	n := 1
	for n < len(s) && s[n] == '=' {
		n++
	}
	if n < len(s) && s[n] == '[' {
		return n - 1
	}
	return -1
}

// terminate returns src with exactly one trailing NUL.
func terminate(src []byte) []byte {
	src = bytes.TrimRight(src, "\x00")
	return append(append([]byte(nil), src...), 0)
}
