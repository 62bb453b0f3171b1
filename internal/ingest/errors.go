package ingest

import (
	"errors"
	"fmt"
)

// ValidationError marks a submission the caller must fix before retrying;
// nothing is persisted for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func validateSource(source string) error {
	switch source {
	case SourceWachete, SourceWatchguard, SourceManual:
		return nil
	case "":
		return &ValidationError{Field: "source", Reason: "is required"}
	default:
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("%q is not a known source", source)}
	}
}

func validateFetchMode(fetchMode string) error {
	switch fetchMode {
	case "", FetchModeHTTP, FetchModeBrowser, FetchModePDF:
		return nil
	default:
		return &ValidationError{Field: "fetch_mode", Reason: fmt.Sprintf("%q is not a known fetch mode", fetchMode)}
	}
}
