package metadata

import (
	"errors"
	"fmt"

	"github.com/ebogdum/diskfs/internal/pathutil"
)

// Failure kinds. Adapters wrap backend failures in *Error carrying one of
// these so callers can match with errors.Is.
var (
	ErrNotFound                 = errors.New("not found")
	ErrUnableToRead             = errors.New("unable to read file")
	ErrUnableToWrite            = errors.New("unable to write file")
	ErrUnableToDelete           = errors.New("unable to delete file")
	ErrUnableToCopy             = errors.New("unable to copy file")
	ErrUnableToMove             = errors.New("unable to move file")
	ErrUnableToRetrieveMetadata = errors.New("unable to retrieve metadata")
	ErrUnableToSetVisibility    = errors.New("unable to set visibility")
	ErrUnableToCreateDirectory  = errors.New("unable to create directory")
	ErrUnableToDeleteDirectory  = errors.New("unable to delete directory")
	ErrUnableToCheckExistence   = errors.New("unable to check existence")
	ErrUnableToList             = errors.New("unable to list contents")

	// ErrUnsupported is returned when the selected backend does not offer a capability.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrConfiguration covers unknown disks, unknown backend types and missing credentials.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrReadOnly is the cause attached to writes rejected by a read-only disk.
	ErrReadOnly = errors.New("filesystem is read-only")
)

// Error is a backend failure tagged with its kind.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

// NewError wraps cause into an *Error of the given kind.
func NewError(kind error, op, path string, cause error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the backend cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsFatal reports whether err must reach the caller regardless of the
// disk's error policy.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnsupported) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, pathutil.ErrPathTraversal)
}

// Unsupported returns an ErrUnsupported error for op.
func Unsupported(op string) error {
	return fmt.Errorf("%s: %w", op, ErrUnsupported)
}

// Configuration returns an ErrConfiguration error with a formatted reason.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Missing is NewError for failures caused by an absent entry; the result
// matches both kind and ErrNotFound.
func Missing(kind error, op, path string, cause error) *Error {
	if cause == nil {
		return NewError(kind, op, path, ErrNotFound)
	}
	return NewError(kind, op, path, fmt.Errorf("%w: %w", ErrNotFound, cause))
}
