package ipc

import "fmt"

// ErrorCode classifies a daemon-side failure for the controller.
type ErrorCode string

const (
	CodeConnection       ErrorCode = "connection"        // DNS/TCP/TLS failure, or daemon unreachable
	CodeAuthentication   ErrorCode = "authentication"    // server rejected credentials
	CodeProtocol         ErrorCode = "protocol"          // malformed or out-of-sequence server message
	CodeKeepaliveTimeout ErrorCode = "keepalive_timeout" // no pong within the window
	CodeState            ErrorCode = "state"             // unknown user/channel or wrong connection phase
	CodeInvalidVolume    ErrorCode = "invalid_volume"    // out-of-range volume input
	CodeAudioDevice      ErrorCode = "audio_device"      // capture/playback device unavailable
	CodeBadRequest       ErrorCode = "bad_request"       // malformed IPC request
)

// Error is a typed failure carried over IPC.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a typed IPC error response.
func Errorf(code ErrorCode, format string, args ...any) *Response {
	return &Response{Error: &Error{Code: code, Message: fmt.Sprintf(format, args...)}}
}
