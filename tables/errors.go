package tables

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the addressed table does not exist.
	ErrNotFound = errors.New("table not found")
	// ErrAlreadyExists is returned when a table with the same set and name is
	// already linked.
	ErrAlreadyExists = errors.New("table already exists")
	// ErrUnsupportedAlgorithm is returned when the requested algorithm is
	// unknown or does not handle the requested key type.
	ErrUnsupportedAlgorithm = errors.New("unsupported table algorithm")
	// ErrOutOfIndices is returned when every table index is taken; the
	// maximum number of tables must be raised.
	ErrOutOfIndices = errors.New("no free table indices")
	// ErrOutOfMemory is returned when an algorithm cannot allocate storage.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrBusy is returned when destroying a table that is still referenced.
	ErrBusy = errors.New("table is referenced")
	// ErrTypeMismatch is returned when the entry or the peer table type
	// differs from the table type.
	ErrTypeMismatch = errors.New("table type mismatch")
	// ErrTooManyEntries is returned when the table reached its entry limit.
	ErrTooManyEntries = errors.New("too many entries")
	// ErrInvalidKey is returned for malformed keys.
	ErrInvalidKey = errors.New("invalid key")
	// ErrKeyNotPresent is returned when deleting a missing key.
	ErrKeyNotPresent = errors.New("key not present")
	// ErrEntryExists is returned when adding an existing key without the
	// update flag.
	ErrEntryExists = errors.New("entry already exists")
	// ErrUnsupported is returned when the algorithm lacks an optional
	// capability.
	ErrUnsupported = errors.New("operation not supported by algorithm")
	// ErrBufferTooSmall is returned when the reply buffer cannot hold a dump.
	ErrBufferTooSmall = errors.New("buffer too small")
	// ErrInvalidOperation is returned for requests that can never succeed in
	// the current state, such as shrinking the registry.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrLocked is returned when mutating a locked table.
	ErrLocked = errors.New("table is locked")
	// ErrInvalidArgument is returned for malformed request parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)

// BufferTooSmallError reports the buffer size a dump requires.
type BufferTooSmallError struct {
	Required int
}

func (m *BufferTooSmallError) Error() string {
	return fmt.Sprintf("%v: %d bytes required", ErrBufferTooSmall, m.Required)
}

func (m *BufferTooSmallError) Unwrap() error {
	return ErrBufferTooSmall
}

// Code is a stable error code reported at the request/response boundary.
type Code uint8

const (
	CodeOK Code = iota
	CodeUnknown
	CodeNotFound
	CodeAlreadyExists
	CodeUnsupportedAlgorithm
	CodeOutOfIndices
	CodeOutOfMemory
	CodeBusy
	CodeTypeMismatch
	CodeTooManyEntries
	CodeInvalidKey
	CodeKeyNotPresent
	CodeEntryExists
	CodeUnsupported
	CodeBufferTooSmall
	CodeInvalidOperation
	CodeLocked
	CodeInvalidArgument
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrNotFound, CodeNotFound},
	{ErrAlreadyExists, CodeAlreadyExists},
	{ErrUnsupportedAlgorithm, CodeUnsupportedAlgorithm},
	{ErrOutOfIndices, CodeOutOfIndices},
	{ErrOutOfMemory, CodeOutOfMemory},
	{ErrBusy, CodeBusy},
	{ErrTypeMismatch, CodeTypeMismatch},
	{ErrTooManyEntries, CodeTooManyEntries},
	{ErrInvalidKey, CodeInvalidKey},
	{ErrKeyNotPresent, CodeKeyNotPresent},
	{ErrEntryExists, CodeEntryExists},
	{ErrUnsupported, CodeUnsupported},
	{ErrBufferTooSmall, CodeBufferTooSmall},
	{ErrInvalidOperation, CodeInvalidOperation},
	{ErrLocked, CodeLocked},
	{ErrInvalidArgument, CodeInvalidArgument},
}

// CodeOf maps an error onto its stable code.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}

	for _, v := range codes {
		if errors.Is(err, v.err) {
			return v.code
		}
	}

	return CodeUnknown
}

var codeNames = [...]string{
	CodeOK:                   "OK",
	CodeUnknown:              "Unknown",
	CodeNotFound:             "NotFound",
	CodeAlreadyExists:        "AlreadyExists",
	CodeUnsupportedAlgorithm: "UnsupportedAlgorithm",
	CodeOutOfIndices:         "OutOfIndices",
	CodeOutOfMemory:          "OutOfMemory",
	CodeBusy:                 "Busy",
	CodeTypeMismatch:         "TypeMismatch",
	CodeTooManyEntries:       "TooManyEntries",
	CodeInvalidKey:           "InvalidKey",
	CodeKeyNotPresent:        "KeyNotPresent",
	CodeEntryExists:          "EntryExists",
	CodeUnsupported:          "Unsupported",
	CodeBufferTooSmall:       "BufferTooSmall",
	CodeInvalidOperation:     "InvalidOperation",
	CodeLocked:               "Locked",
	CodeInvalidArgument:      "InvalidArgument",
}

// String implements fmt.Stringer.
func (m Code) String() string {
	if int(m) < len(codeNames) {
		return codeNames[m]
	}

	return fmt.Sprintf("Code(%d)", uint8(m))
}
