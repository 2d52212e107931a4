// Package message defines the JTP wire envelope: one JSON object per line
// carrying a type, a correlation id and an optional parameter bag.
package message

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Params map[string]any

// Clone returns a shallow copy. Nested values are shared.
func (p Params) Clone() Params {
	if len(p) == 0 {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Message is immutable once constructed. Use WithID or WithParam to derive
// a modified copy. Integer params are stored as int64, the type the codec
// decodes them to.
type Message struct {
	id      string
	msgType Type
	params  Params
}

func New(id string, msgType Type, params Params) (*Message, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is blank", ErrInvalidArgument)
	}
	if !msgType.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidArgument, msgType)
	}
	for k := range params {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: parameter key is blank", ErrInvalidArgument)
		}
	}
	p := params.Clone()
	for k, v := range p {
		p[k] = normalizeInt(v)
	}
	return &Message{id: id, msgType: msgType, params: p}, nil
}

// NewID returns a fresh correlation id.
func NewID() string {
	return uuid.New().String()
}

// NewRequest builds a REQUEST with a freshly generated id.
func NewRequest(command string, params Params) (*Message, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("%w: command is blank", ErrInvalidArgument)
	}
	p := params.Clone()
	if p == nil {
		p = Params{}
	}
	p[ParamCommand] = command
	return New(NewID(), Request, p)
}

func NewResponse(id string, params Params) (*Message, error) {
	return New(id, Response, params)
}

// NewError builds an ERROR carrying a human readable message and, when code is
// not empty, a machine readable code.
func NewError(id, code, text string) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: error message is blank", ErrInvalidArgument)
	}
	p := Params{ParamMessage: text}
	if code != "" {
		p[ParamCode] = code
	}
	return New(id, Error, p)
}

func NewAuth(id string, params Params) (*Message, error) {
	return New(id, Auth, params)
}

func (m *Message) ID() string {
	return m.id
}

func (m *Message) Type() Type {
	return m.msgType
}

func (m *Message) IsBroadcast() bool {
	return m.id == BroadcastID
}

// Params returns a copy of the parameter bag.
func (m *Message) Params() Params {
	return m.params.Clone()
}

func (m *Message) HasParam(key string) bool {
	_, ok := m.params[key]
	return ok
}

func (m *Message) Param(key string) (any, error) {
	v, ok := m.params[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingParameter, key)
	}
	return v, nil
}

func (m *Message) ParamOr(key string, def any) any {
	if v, ok := m.params[key]; ok {
		return v
	}
	return def
}

func (m *Message) StringParam(key string) (string, error) {
	v, err := m.Param(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: parameter %s is %T, not a string", ErrInvalidArgument, key, v)
	}
	return s, nil
}

// StringParamOr returns def when the key is absent or not a string.
func (m *Message) StringParamOr(key, def string) string {
	if s, ok := m.params[key].(string); ok {
		return s
	}
	return def
}

// WithID stamps a new id on a copy of the message.
func (m *Message) WithID(id string) (*Message, error) {
	return New(id, m.msgType, m.params)
}

func (m *Message) WithParam(key string, value any) (*Message, error) {
	p := m.params.Clone()
	if p == nil {
		p = Params{}
	}
	p[key] = value
	return New(m.id, m.msgType, p)
}

func (m *Message) String() string {
	return fmt.Sprintf("%s[%s]", m.msgType, m.id)
}
