package types

import (
	"errors"
	"fmt"
)

const (
	CodeValidation           = "VALIDATION"
	CodeNotFound             = "NOT_FOUND"
	CodeNotAuthenticated     = "NOT_AUTHENTICATED"
	CodeInvalidCredential    = "INVALID_CREDENTIAL"
	CodeOAuthDenied          = "OAUTH_DENIED"
	CodeOAuthProtocol        = "OAUTH_PROTOCOL_ERROR"
	CodeTokenExchange        = "TOKEN_EXCHANGE_FAILED"
	CodeOrganizerUnavailable = "ORGANIZER_UNAVAILABLE"
	CodeExtractionFailure    = "EXTRACTION_FAILURE"
	CodeDownloadFailure      = "DOWNLOAD_FAILURE"
	CodeExportInProgress     = "EXPORT_IN_PROGRESS"
	CodeStorageFailure       = "STORAGE_FAILURE"
	CodeEvalFailure          = "EVAL_FAILURE"
	CodeEvalTimeout          = "EVAL_TIMEOUT"
	CodeCDPUnavailable       = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// HasCode reports whether err (or anything it wraps) is a CodedError with code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

// CodeOf returns the code of the outermost CodedError in err's chain.
func CodeOf(err error) string {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return ""
	}
	return coded.Code
}
