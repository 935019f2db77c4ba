package melt

import (
	"fmt"
	"strconv"
	"strings"
)

// Structural keys group options for clip joining and input handling. They are
// kept in the tree but never rendered as -key flags.
const (
	KeyJoinClips   = "joinClips"
	KeyInputSource = "inputSource"
	KeyClipOption  = "clipOption"
)

var structuralKeys = map[string]bool{
	KeyJoinClips:   true,
	KeyInputSource: true,
	KeyClipOption:  true,
}

// IsStructuralKey reports whether key is one of the grouping markers that is
// suppressed from flag emission.
func IsStructuralKey(key string) bool {
	return structuralKeys[key]
}

// Node is one value in an option tree: either a scalar literal or an ordered
// list of entries. The zero Node is an empty list.
type Node struct {
	scalar  bool
	text    string
	numeric bool
	entries []Entry
}

// Entry is a list member. An empty Key marks a positional entry.
type Entry struct {
	Key   string
	Value Node
}

// Str returns a scalar holding s. Strings that parse as numbers are rendered
// bare, everything else is quoted.
func Str(s string) Node {
	return Node{scalar: true, text: s, numeric: isNumeric(s)}
}

// Int returns a numeric scalar.
func Int(v int) Node {
	return Node{scalar: true, text: strconv.Itoa(v), numeric: true}
}

// Num returns a numeric scalar using the shortest decimal representation of v.
func Num(v float64) Node {
	return Node{scalar: true, text: strconv.FormatFloat(v, 'f', -1, 64), numeric: true}
}

// List returns a list node with the given entries.
func List(entries ...Entry) Node {
	return Node{entries: entries}
}

// Values returns a list of positional entries.
func Values(values ...Node) Node {
	entries := make([]Entry, len(values))
	for i, v := range values {
		entries[i] = Entry{Value: v}
	}
	return Node{entries: entries}
}

// KV builds a keyed entry.
func KV(key string, value Node) Entry {
	return Entry{Key: key, Value: value}
}

// Pos builds a positional entry.
func Pos(value Node) Entry {
	return Entry{Value: value}
}

// Option is shorthand for a single-entry list, the shape accepted by
// Builder.AddOption for a plain "-key value" pair.
func Option(key string, value Node) Node {
	return List(KV(key, value))
}

func (n Node) IsScalar() bool { return n.scalar }

func (n Node) IsNumeric() bool { return n.scalar && n.numeric }

// Text returns the literal of a scalar node, or "" for lists.
func (n Node) Text() string { return n.text }

// Entries returns the entries of a list node. The returned slice must not be
// modified.
func (n Node) Entries() []Entry { return n.entries }

func (n Node) Len() int { return len(n.entries) }

// Get returns the value stored under key in a list node.
func (n Node) Get(key string) (Node, bool) {
	for _, e := range n.entries {
		if e.Key != "" && e.Key == key {
			return e.Value, true
		}
	}
	return Node{}, false
}

// Has reports whether a list node contains key.
func (n Node) Has(key string) bool {
	_, ok := n.Get(key)
	return ok
}

// Set replaces the value of key in place or appends it when absent.
func (n Node) Set(key string, value Node) Node {
	out := n.clone()
	for i, e := range out.entries {
		if e.Key == key {
			out.entries[i].Value = value
			return out
		}
	}
	out.entries = append(out.entries, KV(key, value))
	return out
}

// Without returns a copy of a list node with the given keys removed.
func (n Node) Without(keys ...string) Node {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	out := Node{}
	for _, e := range n.entries {
		if e.Key != "" && drop[e.Key] {
			continue
		}
		out.entries = append(out.entries, e)
	}
	return out
}

// Append returns a copy of a list node with entries added at the end.
func (n Node) Append(entries ...Entry) Node {
	out := n.clone()
	out.entries = append(out.entries, entries...)
	return out
}

func (n Node) clone() Node {
	if n.scalar {
		return n
	}
	out := Node{entries: make([]Entry, len(n.entries))}
	copy(out.entries, n.entries)
	return out
}

// Merge overlays override onto base. Keyed entries already present in base are
// replaced where they stand, new keys are appended in override order and
// positional entries of override are appended after them.
func Merge(base, override Node) Node {
	out := base.clone()
	for _, e := range override.entries {
		if e.Key == "" {
			out.entries = append(out.entries, e)
			continue
		}
		out = out.Set(e.Key, e.Value)
	}
	return out
}

// String renders a debug dump of the tree.
func (n Node) String() string {
	var b strings.Builder
	n.dump(&b, 0)
	return b.String()
}

func (n Node) dump(b *strings.Builder, depth int) {
	if n.scalar {
		if n.numeric {
			b.WriteString(n.text)
		} else {
			fmt.Fprintf(b, "%q", n.text)
		}
		return
	}
	b.WriteString("[\n")
	for i, e := range n.entries {
		b.WriteString(strings.Repeat("    ", depth+1))
		if e.Key != "" {
			fmt.Fprintf(b, "[%s] => ", e.Key)
		} else {
			fmt.Fprintf(b, "[%d] => ", i)
		}
		e.Value.dump(b, depth+1)
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("    ", depth))
	b.WriteString("]")
}

func isNumeric(s string) bool {
	t := strings.Trim(s, " \t\n\r\v\f")
	if t == "" {
		return false
	}
	if _, err := strconv.ParseFloat(t, 64); err != nil {
		return false
	}
	// ParseFloat accepts forms melt would not read as plain numbers.
	lower := strings.ToLower(t)
	if strings.ContainsAny(lower, "_xpn") || strings.Contains(lower, "inf") {
		return false
	}
	return true
}
