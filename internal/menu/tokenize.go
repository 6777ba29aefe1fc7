package menu

import "strings"

// tokenize splits a command line on whitespace. Single or double quotes
// group words and a backslash escapes the next byte.
//
//	add light "Hall Light"  ->  [add light Hall Light]
func tokenize(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var (
		out    []string
		buf    strings.Builder
		quote  byte
		escape bool
		quoted bool
	)
	flush := func() {
		if buf.Len() > 0 || quoted {
			out = append(out, buf.String())
			buf.Reset()
		}
		quoted = false
	}

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escape:
			buf.WriteByte(ch)
			escape = false
		case ch == '\\':
			escape = true
		case quote != 0:
			if ch == quote {
				quote = 0
				continue
			}
			buf.WriteByte(ch)
		case ch == '"' || ch == '\'':
			quote = ch
			quoted = true
		case ch == ' ' || ch == '\t':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// splitArgs separates the arguments before "--" from those after it.
func splitArgs(args []string) (head, tail []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}
