package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Codec turns messages into single wire lines and back. Encoded output never
// contains the trailing newline.
type Codec interface {
	Encode(m *Message) ([]byte, error)
	Decode(line []byte) (*Message, error)
}

type JSONCodec struct{}

var DefaultCodec Codec = JSONCodec{}

type wireMessage struct {
	Type   *string        `json:"type"`
	ID     *string        `json:"id"`
	Params map[string]any `json:"params,omitempty"`
}

func (JSONCodec) Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidArgument)
	}
	t := m.msgType.String()
	id := m.id
	data, err := json.Marshal(wireMessage{Type: &t, ID: &id, Params: m.params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m, err)
	}
	return data, nil
}

func (JSONCodec) Decode(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrMalformedMessage)
	}

	var w wireMessage
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if dec.InputOffset() != int64(len(line)) {
		return nil, fmt.Errorf("%w: trailing data after message", ErrMalformedMessage)
	}
	for k, v := range w.Params {
		w.Params[k] = fromJSON(v)
	}
	if w.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if w.ID == nil {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedMessage)
	}
	t, ok := ParseType(*w.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformedMessage, *w.Type)
	}

	m, err := New(*w.ID, t, w.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}

func Encode(m *Message) ([]byte, error) {
	return DefaultCodec.Encode(m)
}

func Decode(line []byte) (*Message, error) {
	return DefaultCodec.Decode(line)
}

// fromJSON replaces json.Number values with int64 when integral and in range,
// float64 otherwise. Numbers outside float64 range stay json.Number.
func fromJSON(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
	case map[string]any:
		for k, e := range v {
			v[k] = fromJSON(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = fromJSON(e)
		}
		return v
	}
	return v
}

func normalizeInt(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n)
		}
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
	}
	return v
}
