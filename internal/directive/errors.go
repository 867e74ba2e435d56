package directive

import (
	"errors"
	"fmt"
)

// Sentinel errors for diagnostic classification.
var (
	// ErrConfig indicates an invalid directive: content and file both or
	// neither given, file insertion disabled, or a bad option value.
	ErrConfig = errors.New("directive configuration error")

	// ErrIO indicates the included file could not be read.
	ErrIO = errors.New("include file read error")

	// ErrDecode indicates the included file is not valid in the selected
	// encoding.
	ErrDecode = errors.New("include file decode error")

	// ErrParse indicates the snippet could not be segmented into statements.
	ErrParse = errors.New("snippet parse error")

	// ErrUnexpected indicates a fault of the execution machinery itself.
	ErrUnexpected = errors.New("unexpected directive error")
)

// Error is a directive failure rendered as a warning node.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error

	// Msg is the warning text shown in the rendered document.
	Msg string

	// File is the included file involved, if any.
	File string

	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: ErrConfig, Msg: fmt.Sprintf(format, args...)}
}

func ioError(file string, err error) *Error {
	return &Error{
		Kind: ErrIO,
		Msg:  fmt.Sprintf("Include file %q not found or reading it failed", file),
		File: file,
		Err:  err,
	}
}

func decodeError(encoding, file string, err error) *Error {
	return &Error{
		Kind: ErrDecode,
		Msg: fmt.Sprintf("Encoding %q used for reading included file %q seems to be wrong, try giving an :encoding: option",
			encoding, file),
		File: file,
		Err:  err,
	}
}

func parseError(text string, err error) *Error {
	return &Error{Kind: ErrParse, Msg: "Could not parse this code:\n" + text, Err: err}
}

func unexpectedError(cause any, text string) *Error {
	e := &Error{Kind: ErrUnexpected, Msg: fmt.Sprintf("Unexpected exception %v while parsing:\n%s", cause, text)}
	if err, ok := cause.(error); ok {
		e.Err = err
	}
	return e
}
