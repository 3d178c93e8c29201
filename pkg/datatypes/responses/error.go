package responses

import "fmt"

// Error is the upstream's JSON error envelope.
type Error struct {
	Inner struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   any    `json:"param,omitempty"`
		Code    string `json:"code"`
	} `json:"error"`

	statusCode int
}

func (e *Error) Error() string                { return fmt.Sprintf("%s: %s", e.Type(), e.Message()) }
func (e *Error) Type() string                 { return e.Inner.Type }
func (e *Error) Message() string              { return e.Inner.Message }
func (e *Error) Source() string               { return "upstream" }
func (e *Error) StatusCode() int              { return e.statusCode }
func (e *Error) SetStatusCode(statusCode int) { e.statusCode = statusCode }
