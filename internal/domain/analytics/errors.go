package analytics

import "fmt"

// Code identifies an engine failure class. The HTTP facade maps each code
// to a transport status; see handler.StatusFor.
type Code string

const (
	CodeUnsupportedFormat Code = "UnsupportedFormat"
	CodeMalformed         Code = "Malformed"
	CodeEmptyInput        Code = "EmptyInput"
	CodeSchemaConflict    Code = "SchemaConflict"
	CodeUnknownDataset    Code = "UnknownDataset"
	CodeUnknownColumn     Code = "UnknownColumn"
	CodeUnknownAggregator Code = "UnknownAggregator"
	CodeNoMeasure         Code = "NoMeasure"
	CodeInvalidExpression Code = "InvalidExpression"
	CodeCancelled         Code = "Cancelled"
	CodeTimeout           Code = "Timeout"
	CodeRemoteFetchFailed Code = "RemoteFetchFailed"
	CodeForbidden         Code = "Forbidden"
	CodeInternal          Code = "Internal"
)

// Error is a typed engine error carrying one of the Code values so the HTTP
// Facade can map it to a status code without string matching.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs an *Error, optionally wrapping a cause.
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}
