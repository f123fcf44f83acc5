package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error the authentication engine can surface.
// The engine recovers from nothing except config-cache staleness, so each
// kind maps to a stable code the transport layer can translate into a
// response without inspecting messages.
type ErrorKind int

const (
	// ErrAuthenticationFailed covers credential mismatches and unknown
	// identities. Unknown-user and wrong-password collapse into the same
	// message to avoid user enumeration.
	ErrAuthenticationFailed ErrorKind = iota + 1

	// ErrUnauthorized means the caller lacks a required role or the
	// operation is forbidden by policy.
	ErrUnauthorized

	// ErrDisabled means the target account is disabled.
	ErrDisabled

	// ErrInvalidToken means the presented token is unknown or expired.
	ErrInvalidToken

	// ErrNoTokenProvided means the request carried no token at all.
	ErrNoTokenProvided

	// ErrMissingParameter means a required parameter was absent or blank.
	ErrMissingParameter

	// ErrIllegalParameter means a parameter was present but invalid.
	ErrIllegalParameter

	ErrNoSuchUser
	ErrNoSuchToken
	ErrNoSuchRole
	ErrNoSuchProvider

	// ErrUserExists means the user name is already taken.
	ErrUserExists

	// ErrIdentityLinked means the remote identity is already linked to an
	// account.
	ErrIdentityLinked

	ErrLinkFailed
	ErrUnlinkFailed

	// ErrIdentityRetrieval means an upstream identity provider call failed.
	ErrIdentityRetrieval

	// ErrStorage wraps transport or availability failures of the storage
	// system.
	ErrStorage

	// ErrInternal marks programmer-invariant violations, e.g. a valid token
	// whose user record does not exist.
	ErrInternal
)

var errorCodes = map[ErrorKind]string{
	ErrAuthenticationFailed: "AUTHENTICATION_FAILED",
	ErrUnauthorized:         "UNAUTHORIZED",
	ErrDisabled:             "DISABLED",
	ErrInvalidToken:         "INVALID_TOKEN",
	ErrNoTokenProvided:      "NO_TOKEN",
	ErrMissingParameter:     "MISSING_PARAMETER",
	ErrIllegalParameter:     "ILLEGAL_PARAMETER",
	ErrNoSuchUser:           "NO_SUCH_USER",
	ErrNoSuchToken:          "NO_SUCH_TOKEN",
	ErrNoSuchRole:           "NO_SUCH_ROLE",
	ErrNoSuchProvider:       "NO_SUCH_PROVIDER",
	ErrUserExists:           "USER_EXISTS",
	ErrIdentityLinked:       "ID_ALREADY_LINKED",
	ErrLinkFailed:           "LINK_FAILED",
	ErrUnlinkFailed:         "UNLINK_FAILED",
	ErrIdentityRetrieval:    "ID_RETRIEVAL_FAILED",
	ErrStorage:              "STORAGE_ERROR",
	ErrInternal:             "INTERNAL_ERROR",
}

// Code returns the stable wire code for the kind.
func (k ErrorKind) Code() string {
	if c, ok := errorCodes[k]; ok {
		return c
	}
	return "UNKNOWN"
}

// Error is the error type surfaced by the engine, storage, and identity
// providers. Callers classify with KindOf or errors.As rather than
// matching messages.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error that wraps an underlying cause. The cause is
// reachable via errors.Unwrap for logging; the message is what callers see.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Code()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf reports whether err is or wraps a domain Error of the given kind.
func KindOf(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
