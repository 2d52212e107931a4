package message

import "strings"

type Type string

const (
	Request  Type = "REQUEST"
	Response Type = "RESPONSE"
	Error    Type = "ERROR"
	Auth     Type = "AUTH"
)

// BroadcastID addresses the connection rather than a single request.
const BroadcastID = "*"

// Well-known parameter names.
const (
	ParamCommand = "command"
	ParamToken   = "token"
	// ParamKey carries the pre-shared key from client to server and the issued
	// session token from server to client.
	ParamKey     = "key"
	ParamMessage = "message"
	ParamCode    = "code"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) Valid() bool {
	switch t {
	case Request, Response, Error, Auth:
		return true
	}
	return false
}

// ParseType resolves a wire type name case-insensitively.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}
