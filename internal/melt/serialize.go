package melt

import "strings"

// lineBreak is the shell line continuation placed between command segments.
const lineBreak = " \\\n"

// Serialize renders an option node in melt's argument grammar.
//
// A scalar at the top level renders as a single space followed by the literal.
// Lists render their entries in order: keyed lists as "-key" followed by the
// nested rendering, keyed scalars as key=literal, positional entries as the
// bare rendering. Structural keys are never written out. Numeric literals are
// bare and all other literals are double quoted.
//
// A non-empty body is prefixed with a line continuation when prefixNewLine is
// set, otherwise with a single space when prefixSpace is set.
func Serialize(n Node, prefixNewLine, prefixSpace bool) string {
	if n.scalar {
		return " " + n.text
	}

	var b strings.Builder
	for _, e := range n.entries {
		flag := e.Key != "" && !IsStructuralKey(e.Key)
		if !e.Value.scalar {
			if flag {
				b.WriteString(" -")
				b.WriteString(e.Key)
				b.WriteString(" ")
			}
			b.WriteString(Serialize(e.Value, false, false))
			b.WriteString(" ")
			continue
		}
		if flag {
			b.WriteString(e.Key)
			b.WriteString("=")
		}
		b.WriteString(literal(e.Value))
		b.WriteString(" ")
	}

	body := strings.TrimSpace(b.String())
	if body == "" {
		return ""
	}
	switch {
	case prefixNewLine:
		return lineBreak + body
	case prefixSpace:
		return " " + body
	}
	return body
}

func literal(n Node) string {
	if n.numeric {
		return n.text
	}
	return `"` + n.text + `"`
}
