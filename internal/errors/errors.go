// Package errors provides the application's error taxonomy.
//
// Every error raised at an operation boundary carries a Category so callers
// can decide how to surface it (inline validation message, transcript entry,
// top-level banner) without inspecting message strings.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category groups errors by how they are surfaced to the user.
type Category string

const (
	CategoryValidation        Category = "validation"
	CategoryDeviceUnavailable Category = "device-unavailable"
	CategoryConnection        Category = "connection"
	CategoryResponseFormat    Category = "response-format"
	CategoryConfiguration     Category = "configuration"
	CategoryNotFound          Category = "not-found"
	CategoryGeneric           Category = "generic"
)

// Sentinels, one per category. errors.Is(err, ErrValidation) matches any
// *Error in the validation category.
var (
	ErrValidation        = &Error{Category: CategoryValidation}
	ErrDeviceUnavailable = &Error{Category: CategoryDeviceUnavailable}
	ErrConnection        = &Error{Category: CategoryConnection}
	ErrResponseFormat    = &Error{Category: CategoryResponseFormat}
	ErrConfiguration     = &Error{Category: CategoryConfiguration}
	ErrNotFound          = &Error{Category: CategoryNotFound}
)

// Error is a categorized error with an optional user-facing message.
type Error struct {
	Category Category
	Op       string // operation that failed, e.g. "live.start"
	Message  string // text safe to show to the user
	Err      error  // underlying cause
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Message != "":
		return e.Message
	default:
		return string(e.Category)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports category equality so that sentinels match wrapped instances.
func (e *Error) Is(target error) bool {
	var t *Error
	if !stderrors.As(target, &t) {
		return false
	}
	return e.Category == t.Category
}

// New creates a categorized error.
func New(category Category, op, message string, err error) *Error {
	return &Error{Category: category, Op: op, Message: message, Err: err}
}

// Validation creates a validation error whose message is shown inline.
func Validation(op, message string) *Error {
	return New(CategoryValidation, op, message, nil)
}

// DeviceUnavailable wraps a capture or playback device failure.
func DeviceUnavailable(op string, err error) *Error {
	return New(CategoryDeviceUnavailable, op, "", err)
}

// Connection wraps a transport failure.
func Connection(op string, err error) *Error {
	return New(CategoryConnection, op, "", err)
}

// ResponseFormat wraps an unparseable or schema-violating model response.
func ResponseFormat(op string, err error) *Error {
	return New(CategoryResponseFormat, op, ResponseFormatMessage, err)
}

// ResponseFormatMessage is shown when the model output cannot be used.
const ResponseFormatMessage = "A IA retornou uma resposta inválida. Por favor, tente novamente."

// GetCategory returns the category of err, or CategoryGeneric.
func GetCategory(err error) Category {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category
	}
	return CategoryGeneric
}

// UserMessage returns the text to show for err. Categorized errors with a
// message use it; everything else falls back to the error string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	return err.Error()
}

// Is, As, Join and Unwrap re-export the standard library helpers so callers
// need a single errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }
