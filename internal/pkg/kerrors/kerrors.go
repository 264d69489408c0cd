// Package kerrors defines the fault taxonomy surfaced by every TNFS operation.
//
// A Fault carries a Kind (used for errors.Is matching), the category and
// code of the fault table shared with the diagnostics sink, a human-readable
// message and free-form details.
package kerrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindWrongKind
	KindNotEmpty
	KindPermissionDenied
	KindAccessDenied
	KindInvalidArgument
	KindRuleNotFound
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindWrongKind:
		return "WrongKind"
	case KindNotEmpty:
		return "NotEmpty"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindAccessDenied:
		return "AccessDenied"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindRuleNotFound:
		return "RuleNotFound"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

const (
	CategoryFS      = "FS"
	CategorySELinux = "SELINUX"
	CategoryStore   = "STORE"
)

const (
	CodeFileNotFound     = "0xFNF0ERR"
	CodePathNotFound     = "0xPNF0ERR"
	CodePermissionDenied = "0xPDN0ERR"
	CodeDirNotEmpty      = "0xDNE0ERR"
	CodeAlreadyExists    = "0xFAE0ERR"
	CodeIsADirectory     = "0xI0D0ERR"
	CodeNotADirectory    = "0xN0D0ERR"
	CodeInvalidValue     = "0xV0E0ERR"

	CodeAccessDenied     = "0xSAD0ERR"
	CodeInvalidMode      = "0xSIM0ERR"
	CodeInvalidOperation = "0xSIO0ERR"
	CodeRuleNotFound     = "0xSRN0ERR"

	CodeTimeout = "0xT0M0ERR"
)

var messages = map[string]string{
	CodeFileNotFound:     "File not found",
	CodePathNotFound:     "Path not found",
	CodePermissionDenied: "Permission denied",
	CodeDirNotEmpty:      "Directory not empty",
	CodeAlreadyExists:    "Path already exists",
	CodeIsADirectory:     "Expected file, found directory",
	CodeNotADirectory:    "Expected directory, found file",
	CodeInvalidValue:     "Invalid value",
	CodeAccessDenied:     "SELinux access denied",
	CodeInvalidMode:      "Invalid SELinux mode",
	CodeInvalidOperation: "Invalid SELinux operation",
	CodeRuleNotFound:     "SELinux rule not found",
	CodeTimeout:          "Operation timed out",
}

// Message returns the table text for code, or "Unknown error".
func Message(code string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return "Unknown error"
}

type Fault struct {
	Kind     Kind
	Category string
	Code     string
	Message  string
	Details  string
	Err      error
}

func (f *Fault) Error() string {
	s := fmt.Sprintf("[%s] %s: %s", f.Code, f.Category, f.Message)
	if f.Details != "" {
		s += ": " + f.Details
	}
	if f.Err != nil {
		s += ": " + f.Err.Error()
	}
	return s
}

func (f *Fault) Unwrap() error { return f.Err }

// Is matches faults of the same kind. A target with a code set must also
// match the code.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok {
		return false
	}
	if t.Kind != f.Kind {
		return false
	}
	return t.Code == "" || t.Code == f.Code
}

// Sentinels for errors.Is.
var (
	ErrNotFound         = &Fault{Kind: KindNotFound}
	ErrAlreadyExists    = &Fault{Kind: KindAlreadyExists}
	ErrWrongKind        = &Fault{Kind: KindWrongKind}
	ErrNotEmpty         = &Fault{Kind: KindNotEmpty}
	ErrPermissionDenied = &Fault{Kind: KindPermissionDenied}
	ErrAccessDenied     = &Fault{Kind: KindAccessDenied}
	ErrInvalidArgument  = &Fault{Kind: KindInvalidArgument}
	ErrRuleNotFound     = &Fault{Kind: KindRuleNotFound}
	ErrTimeout          = &Fault{Kind: KindTimeout}
)

func New(kind Kind, category, code, details string) *Fault {
	return &Fault{
		Kind:     kind,
		Category: category,
		Code:     code,
		Message:  Message(code),
		Details:  details,
	}
}

func Wrap(kind Kind, category, code, details string, err error) *Fault {
	f := New(kind, category, code, details)
	f.Err = err
	return f
}

// As returns the first Fault in err's chain.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf returns the kind of the first Fault in err's chain.
func KindOf(err error) Kind {
	if f, ok := As(err); ok {
		return f.Kind
	}
	return KindUnknown
}

func FileNotFound(path string) *Fault {
	return New(KindNotFound, CategoryFS, CodeFileNotFound, path)
}

func PathNotFound(path string) *Fault {
	return New(KindNotFound, CategoryFS, CodePathNotFound, path)
}

func AlreadyExists(path string) *Fault {
	return New(KindAlreadyExists, CategoryFS, CodeAlreadyExists, path)
}

func IsADirectory(path string) *Fault {
	return New(KindWrongKind, CategoryFS, CodeIsADirectory, path)
}

func NotADirectory(path string) *Fault {
	return New(KindWrongKind, CategoryFS, CodeNotADirectory, path)
}

func NotEmpty(path string) *Fault {
	return New(KindNotEmpty, CategoryFS, CodeDirNotEmpty, path)
}

func PermissionDenied(details string) *Fault {
	return New(KindPermissionDenied, CategoryFS, CodePermissionDenied, details)
}

func AccessDenied(details string) *Fault {
	return New(KindAccessDenied, CategorySELinux, CodeAccessDenied, details)
}

func InvalidArgument(details string) *Fault {
	return New(KindInvalidArgument, CategoryFS, CodeInvalidValue, details)
}

func InvalidMode(literal string) *Fault {
	return New(KindInvalidArgument, CategorySELinux, CodeInvalidMode, literal)
}

func InvalidOperation(literal string) *Fault {
	return New(KindInvalidArgument, CategorySELinux, CodeInvalidOperation, literal)
}

func RuleNotFound(details string) *Fault {
	return New(KindRuleNotFound, CategorySELinux, CodeRuleNotFound, details)
}

func Timeout(details string, err error) *Fault {
	return Wrap(KindTimeout, CategoryStore, CodeTimeout, details, err)
}
