// Package serrors provides coded errors shared across modules. Codes are
// stable machine-readable identifiers; the locale key, when present, points at
// a translation bundle entry owned by the embedding application.
package serrors

import "fmt"

type BaseError struct {
	Code      string
	Message   string
	LocaleKey string
}

func (e *BaseError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{Code: code, Message: message, LocaleKey: localeKey}
}
