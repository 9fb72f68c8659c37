package content

import "fmt"

// Kind classifies why content could not be processed.
type Kind string

const (
	KindDecode     Kind = "decode"
	KindParse      Kind = "parse"
	KindProcessing Kind = "processing"
)

// Error is the failure half of a processing outcome.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func decodeError(msg string, err error) *Error {
	return &Error{Kind: KindDecode, Message: msg, Err: err}
}

func parseError(msg string, err error) *Error {
	return &Error{Kind: KindParse, Message: msg, Err: err}
}
