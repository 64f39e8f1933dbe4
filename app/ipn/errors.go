package ipn

import "errors"

// Class groups failures for status mapping and audit.
type Class string

const (
	ClassTransport      Class = "transport"
	ClassAuthentication Class = "authentication"
	ClassSchema         Class = "schema"
	ClassDomain         Class = "domain"
	ClassUpstream       Class = "upstream"
)

type Error struct {
	Class   Class
	message string
}

func NewError(class Class, message string) *Error {
	return &Error{Class: class, message: message}
}

func (e *Error) Error() string {
	return e.message
}

var (
	ErrEmptyBody                   = NewError(ClassTransport, "empty request body")
	ErrMalformedPayload            = NewError(ClassTransport, "Invalid POST data")
	ErrMissingKeys                 = NewError(ClassSchema, "missing required keys")
	ErrUnknownMessageType          = NewError(ClassSchema, "unknown message type")
	ErrInvalidCertificateURL       = NewError(ClassAuthentication, "invalid certificate URL")
	ErrUnsupportedSignatureVersion = NewError(ClassAuthentication, "unsupported signature version")
	ErrCertificateFetch            = NewError(ClassAuthentication, "cannot get the certificate")
	ErrSignatureMismatch           = NewError(ClassAuthentication, "the message signature is invalid")
	ErrCryptoUnavailable           = NewError(ClassAuthentication, "signature verification unavailable")
)

// ClassOf reports the class of err. Errors outside the taxonomy are upstream failures.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Class
	}
	return ClassUpstream
}
