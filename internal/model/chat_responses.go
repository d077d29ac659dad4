package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// ChatResponses is an ordered snapshot of labeled answers derived from a
// chat transcript. It marshals to a JSON object whose keys appear in
// insertion order; duplicate labels are permitted (later funnel variants
// reuse question labels), which rules out a plain map.
type ChatResponses struct {
	Entries []ChatResponseEntry
}

// ChatResponseEntry is one label→text pair.
type ChatResponseEntry struct {
	Label string
	Text  string
}

// Add appends an entry.
func (c *ChatResponses) Add(label, text string) {
	c.Entries = append(c.Entries, ChatResponseEntry{Label: label, Text: text})
}

// Len returns the number of entries.
func (c *ChatResponses) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

// MarshalJSON writes an object literal preserving insertion order.
func (c ChatResponses) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Label)
		if err != nil {
			return nil, eris.Wrap(err, "chat responses: marshal label")
		}
		val, err := json.Marshal(e.Text)
		if err != nil {
			return nil, eris.Wrap(err, "chat responses: marshal text")
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object literal, preserving the key order found
// in the document.
func (c *ChatResponses) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "chat responses: decode")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return eris.New("chat responses: expected JSON object")
	}

	c.Entries = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "chat responses: decode key")
		}
		key, ok := keyTok.(string)
		if !ok {
			return eris.New("chat responses: non-string key")
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return eris.Wrap(err, "chat responses: decode value")
		}
		c.Entries = append(c.Entries, ChatResponseEntry{Label: key, Text: val})
	}
	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return eris.Wrap(err, "chat responses: decode close")
	}
	return nil
}
