package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError carries a stable code and a caller-facing message on top of a
// sentinel cause, so errors.Is still works through it.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrValidation    = errors.New("validation failed")
)

// Extraction workflow failure kinds.
var (
	// ErrInvalidDocument: unreadable or empty file. Terminal.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrEncryptionCredential: wrong or missing password. Recoverable.
	ErrEncryptionCredential = errors.New("incorrect password")
	// ErrExtractionFailure: a text, table or vision path produced nothing usable.
	ErrExtractionFailure = errors.New("extraction failed")
	// ErrModelOutputMalformed: model output not recoverable as JSON.
	ErrModelOutputMalformed = errors.New("model output malformed")
	// ErrPersistenceFailure: a write of report, biomarkers or trend failed. Terminal.
	ErrPersistenceFailure = errors.New("persistence failed")
)

// WrapError prefixes err with message, keeping the chain. Nil stays nil.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InvalidArgumentErrorf(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

func FailedPreconditionError(message string) error {
	return status.Error(codes.FailedPrecondition, message)
}

func InternalErrorf(format string, args ...any) error {
	return status.Errorf(codes.Internal, format, args...)
}

// ToStatus maps application errors onto gRPC status errors. Errors that
// already carry a status code pass through.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, ErrAlreadyExists):
		code = codes.AlreadyExists
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidDocument):
		code = codes.InvalidArgument
	case errors.Is(err, ErrEncryptionCredential):
		code = codes.FailedPrecondition
	}
	var appErr *AppError
	if errors.As(err, &appErr) && code != codes.Internal {
		return status.Error(code, appErr.Message)
	}
	return status.Error(code, err.Error())
}
