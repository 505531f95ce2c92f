package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation. The value doubles as the ABCI result code.
type Kind uint32

const (
	KindInternal         Kind = 1
	KindEncoding         Kind = 2
	KindBadSignature     Kind = 3
	KindBadNonce         Kind = 4
	KindUnauthorized     Kind = 10
	KindNotFound         Kind = 11
	KindAlreadyFinalized Kind = 12
	KindInvalidArgument  Kind = 13
	KindIndexOutOfRange  Kind = 14
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindEncoding:
		return "EncodingError"
	case KindBadSignature:
		return "BadSignature"
	case KindBadNonce:
		return "BadNonce"
	case KindUnauthorized:
		return "Unauthorized"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyFinalized:
		return "AlreadyFinalized"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindIndexOutOfRange:
		return "IndexOutOfRange"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

// Code is the ABCI response code for k.
func (k Kind) Code() uint32 {
	return uint32(k)
}

// Error is the failure of a single ledger operation. It never reflects a partial state change.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works for detailed errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAlreadyFinalized = &Error{Kind: KindAlreadyFinalized}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrIndexOutOfRange  = &Error{Kind: KindIndexOutOfRange}
	ErrEncoding         = &Error{Kind: KindEncoding}
	ErrBadSignature     = &Error{Kind: KindBadSignature}
	ErrBadNonce         = &Error{Kind: KindBadNonce}
)

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewError builds an *Error of the given kind
func NewError(kind Kind, format string, args ...any) *Error {
	return errorf(kind, format, args...)
}

// KindOf extracts the kind of err. Errors that did not originate in the ledger are internal.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return KindInternal
}
