package commands

import (
	"strings"
	"unicode"
)

// Invocation is a parsed command line.
type Invocation struct {
	Prefix  string
	Command string
	Args    []string
}

// isSpace reports whether r separates tokens. U+FEFF counts as space in
// chat clients that pad messages with it.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// Parse extracts a command invocation from text. The prefix is matched
// literally and case-sensitively at the very start of text. It returns nil
// when text does not start with prefix immediately followed by a command token.
func Parse(text, prefix string) *Invocation {
	if !strings.HasPrefix(text, prefix) {
		return nil
	}
	rest := text[len(prefix):]

	end := strings.IndexFunc(rest, isSpace)
	if end == -1 {
		end = len(rest)
	}
	if end == 0 {
		return nil
	}

	return &Invocation{
		Prefix:  prefix,
		Command: rest[:end],
		Args:    strings.FieldsFunc(rest[end:], isSpace),
	}
}
