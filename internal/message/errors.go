package message

import "errors"

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrMissingParameter = errors.New("missing parameter")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Codes sent in params.code of ERROR messages.
const (
	CodeMalformedMessage  = "MALFORMED_MESSAGE"
	CodeMissingParameter  = "MISSING_PARAMETER"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeUnknownCommand    = "UNKNOWN_COMMAND"
	CodeHandlerFailed     = "HANDLER_FAILED"
	CodeAuthFailed        = "AUTH_FAILED"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeProtocolViolation = "PROTOCOL_VIOLATION"
	CodeServerBusy        = "SERVER_BUSY"
)
