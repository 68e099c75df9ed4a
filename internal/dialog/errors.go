package dialog

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vulnsphere/console/internal/apiclient"
)

// ValidationError is a message tied to one form field. Field is empty for
// non-field errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Invalid ties a validator's error to field, capitalized for display.
func Invalid(field string, err error) *ValidationError {
	msg := err.Error()
	r, n := utf8.DecodeRuneInString(msg)
	if r != utf8.RuneError {
		msg = string(unicode.ToUpper(r)) + msg[n:]
	}
	return &ValidationError{Field: field, Message: strings.TrimSpace(msg)}
}

// ServerError is a form-level message.
type ServerError struct {
	Message string
	cause   error
}

func (e *ServerError) Error() string { return e.Message }
func (e *ServerError) Unwrap() error { return e.cause }

// Translate turns an API failure into the message a form shows: the first
// field-level message, else the body's detail or error, else fallback.
// ErrLoginRequired passes through so the caller can redirect.
func Translate(err error, fallback string, prefer ...string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apiclient.ErrLoginRequired) {
		return err
	}
	var ve *ValidationError
	var se *ServerError
	if errors.As(err, &ve) || errors.As(err, &se) {
		return err
	}

	var he *apiclient.HTTPError
	if errors.As(err, &he) {
		p := he.Problem()
		if field, msg, ok := p.FieldMessage(prefer...); ok {
			return &ValidationError{Field: field, Message: msg}
		}
		if msg := p.TopLevel(); msg != "" {
			return &ServerError{Message: msg, cause: err}
		}
	}
	return &ServerError{Message: fallback, cause: err}
}

// Message is the text to render for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

// FieldOf returns the form field an error belongs to, if any.
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}
