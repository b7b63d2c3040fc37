package utils

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so handlers can turn it into a user-facing status.
type Kind int

const (
	KindUnknown Kind = iota
	// InputMissing: a required field (device URL, invite token) is empty.
	InputMissing
	// InputInvalid: a field is present but cannot be used (unparsable device URL).
	InputInvalid
	// CapabilityDenied: camera permission refused or no camera available.
	CapabilityDenied
	// DecodeEmpty: no QR code in the image. Informational.
	DecodeEmpty
	// ClipboardUnavailable: the clipboard could not be written.
	ClipboardUnavailable
)

func (k Kind) String() string {
	switch k {
	case InputMissing:
		return "input_missing"
	case InputInvalid:
		return "input_invalid"
	case CapabilityDenied:
		return "capability_denied"
	case DecodeEmpty:
		return "decode_empty"
	case ClipboardUnavailable:
		return "clipboard_unavailable"
	default:
		return "unknown"
	}
}

type CustomError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CustomError) Unwrap() error { return e.Err }

// Is reports whether target is a CustomError with the same kind and message,
// so a wrapped copy of a sentinel still matches the sentinel.
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func New(kind Kind, message string) error {
	return &CustomError{
		Kind:    kind,
		Message: message,
	}
}

// Wrap attaches the underlying cause to a sentinel created with New.
func Wrap(sentinel error, err error) error {
	var ce *CustomError
	if !errors.As(sentinel, &ce) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return &CustomError{Kind: ce.Kind, Message: ce.Message, Err: err}
}

// KindOf returns the Kind of the first CustomError in err's chain.
func KindOf(err error) Kind {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}
