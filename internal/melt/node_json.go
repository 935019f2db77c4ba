package melt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalJSON decodes an option tree while keeping document order. Objects
// become keyed lists, arrays become positional lists, numbers become numeric
// scalars and booleans become 1 or 0.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	node, err := decodeNode(dec)
	if err != nil {
		return err
	}
	*n = node
	return nil
}

// MarshalJSON encodes the tree. Lists whose entries are all keyed become
// objects (in entry order), anything else becomes an array where keyed entries
// are wrapped in single-key objects.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNode(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			out := Node{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Node{}, fmt.Errorf("option key: unexpected token %v", keyTok)
				}
				val, err := decodeNode(dec)
				if err != nil {
					return Node{}, fmt.Errorf("option %q: %w", key, err)
				}
				out = out.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return out, nil
		case '[':
			out := Node{}
			for dec.More() {
				val, err := decodeNode(dec)
				if err != nil {
					return Node{}, err
				}
				out.entries = append(out.entries, Pos(val))
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return out, nil
		}
		return Node{}, fmt.Errorf("unexpected delimiter %v", v)
	case json.Number:
		return Node{scalar: true, text: v.String(), numeric: true}, nil
	case string:
		return Str(v), nil
	case bool:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case nil:
		return Str(""), nil
	}
	return Node{}, fmt.Errorf("unexpected token %v", tok)
}

func (n Node) encode(buf *bytes.Buffer) error {
	if n.scalar {
		if n.numeric {
			buf.WriteString(n.text)
			return nil
		}
		b, err := json.Marshal(n.text)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}

	allKeyed := len(n.entries) > 0
	for _, e := range n.entries {
		if e.Key == "" {
			allKeyed = false
			break
		}
	}

	if allKeyed {
		buf.WriteByte('{')
		for i, e := range n.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeKeyed(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}

	buf.WriteByte('[')
	for i, e := range n.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if e.Key != "" {
			buf.WriteByte('{')
			if err := writeKeyed(buf, e); err != nil {
				return err
			}
			buf.WriteByte('}')
			continue
		}
		if err := e.Value.encode(buf); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeKeyed(buf *bytes.Buffer, e Entry) error {
	k, err := json.Marshal(e.Key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return e.Value.encode(buf)
}
