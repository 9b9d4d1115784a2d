package parse

import "fmt"

// ErrorKind classifies why a datagram could not be decoded.
type ErrorKind int

const (
	// ErrKindEncoding means the datagram is not valid UTF-8.
	ErrKindEncoding ErrorKind = iota + 1
	// ErrKindTooShort means there are too few '|' fields for the message type.
	ErrKindTooShort
	// ErrKindBadNumber means a required numeric field did not parse.
	ErrKindBadNumber
	// ErrKindUnknownType means the leading tag is not a known message type.
	ErrKindUnknownType
)

// String returns the metric/log label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindEncoding:
		return "encoding"
	case ErrKindTooShort:
		return "too_short"
	case ErrKindBadNumber:
		return "bad_number"
	case ErrKindUnknownType:
		return "unknown_type"
	default:
		return "unknown"
	}
}

// DecodeError is returned by Decode. Field is the index of the offending
// '|' field for ErrKindBadNumber and zero otherwise.
type DecodeError struct {
	Kind  ErrorKind
	Field int
	Tag   string
	Err   error
}

// Sentinels for errors.Is; only Kind is compared.
var (
	ErrEncoding    = &DecodeError{Kind: ErrKindEncoding}
	ErrTooShort    = &DecodeError{Kind: ErrKindTooShort}
	ErrBadNumber   = &DecodeError{Kind: ErrKindBadNumber}
	ErrUnknownType = &DecodeError{Kind: ErrKindUnknownType}
)

const maxTagInError = 32

func (e *DecodeError) Error() string {
	tag := e.Tag
	if len(tag) > maxTagInError {
		tag = tag[:maxTagInError] + "..."
	}
	switch e.Kind {
	case ErrKindEncoding:
		return "decode: datagram is not valid UTF-8"
	case ErrKindTooShort:
		return fmt.Sprintf("decode: message %q too short", tag)
	case ErrKindBadNumber:
		if e.Err != nil {
			return fmt.Sprintf("decode: message %q field %d: %v", tag, e.Field, e.Err)
		}
		return fmt.Sprintf("decode: message %q field %d is not a number", tag, e.Field)
	case ErrKindUnknownType:
		return fmt.Sprintf("decode: unknown message type %q", tag)
	default:
		return "decode: unknown error"
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches any *DecodeError with the same Kind.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}
