package domain

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxUserNameLength is the maximum length of a user name in characters.
	MaxUserNameLength = 100

	// MaxDisplayNameLength is the maximum length of a display name.
	MaxDisplayNameLength = 100

	// MaxEmailLength is the maximum length of an email address.
	MaxEmailLength = 1000

	// rootUserName is the reserved name of the root account. It cannot be
	// produced by NewUserName since it fails the name pattern; use Root().
	rootUserName = "***ROOT***"
)

var (
	userNamePattern    = regexp.MustCompile(`^[a-z][a-z0-9]*$`)
	invalidNameChars   = regexp.MustCompile(`[^a-z0-9]+`)
	leadingDigits      = regexp.MustCompile(`^[0-9]+`)
)

// UserName is a normalized account identifier: lowercase alphanumerics
// starting with a letter, at most MaxUserNameLength characters. The zero
// value is invalid and reports IsZero.
type UserName struct {
	name string
}

// NewUserName validates and returns a UserName.
func NewUserName(name string) (UserName, error) {
	if name == "" {
		return UserName{}, NewError(ErrMissingParameter, "user name")
	}
	if len(name) > MaxUserNameLength {
		return UserName{}, Errorf(ErrIllegalParameter,
			"user name exceeds maximum length of %d", MaxUserNameLength)
	}
	if !userNamePattern.MatchString(name) {
		return UserName{}, Errorf(ErrIllegalParameter,
			"Illegal user name: %s", name)
	}
	return UserName{name: name}, nil
}

// Root returns the reserved root account name.
func Root() UserName {
	return UserName{name: rootUserName}
}

// Name returns the string form of the user name.
func (n UserName) Name() string { return n.name }

// IsRoot reports whether the name is the reserved root account name.
func (n UserName) IsRoot() bool { return n.name == rootUserName }

// IsZero reports whether the name is the invalid zero value.
func (n UserName) IsZero() bool { return n.name == "" }

func (n UserName) String() string { return n.name }

// SanitizeUserName maps arbitrary input to a valid UserName by lowercasing,
// removing illegal characters, and stripping leading digits. Returns false
// if nothing valid remains.
func SanitizeUserName(suggested string) (UserName, bool) {
	s := strings.ToLower(suggested)
	s = invalidNameChars.ReplaceAllString(s, "")
	s = leadingDigits.ReplaceAllString(s, "")
	if s == "" {
		return UserName{}, false
	}
	if len(s) > MaxUserNameLength {
		s = s[:MaxUserNameLength]
	}
	return UserName{name: s}, true
}

// DisplayName is a free-text user-facing name with no control characters.
type DisplayName struct {
	name string
}

// UnknownDisplayName is the sentinel used when a display name cannot be
// determined, e.g. when importing a user whose provider returned no name.
var UnknownDisplayName = DisplayName{name: "unknown"}

// NewDisplayName validates and returns a DisplayName. Leading and trailing
// whitespace is stripped.
func NewDisplayName(name string) (DisplayName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DisplayName{}, NewError(ErrMissingParameter, "display name")
	}
	if len(name) > MaxDisplayNameLength {
		return DisplayName{}, Errorf(ErrIllegalParameter,
			"display name exceeds maximum length of %d", MaxDisplayNameLength)
	}
	if containsControlChars(name) {
		return DisplayName{}, NewError(ErrIllegalParameter,
			"display name contains control characters")
	}
	return DisplayName{name: name}, nil
}

// Name returns the string form of the display name.
func (n DisplayName) Name() string { return n.name }

// IsZero reports whether the display name is unset.
func (n DisplayName) IsZero() bool { return n.name == "" }

func (n DisplayName) String() string { return n.name }

// EmailAddress is a validated RFC-shaped email address, or the unknown
// sentinel for accounts without one.
type EmailAddress struct {
	email   string
	unknown bool
}

// UnknownEmail is the sentinel for accounts without a known email address.
var UnknownEmail = EmailAddress{unknown: true}

// NewEmailAddress validates and returns an EmailAddress.
func NewEmailAddress(email string) (EmailAddress, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return EmailAddress{}, NewError(ErrMissingParameter, "email address")
	}
	if len(email) > MaxEmailLength {
		return EmailAddress{}, Errorf(ErrIllegalParameter,
			"email address exceeds maximum length of %d", MaxEmailLength)
	}
	if containsControlChars(email) {
		return EmailAddress{}, NewError(ErrIllegalParameter,
			"email address contains control characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return EmailAddress{}, Errorf(ErrIllegalParameter,
			"Illegal email address: %s", email)
	}
	return EmailAddress{email: email}, nil
}

// Address returns the string form of the address, or "" for the unknown
// sentinel.
func (e EmailAddress) Address() string { return e.email }

// IsUnknown reports whether the address is the unknown sentinel.
func (e EmailAddress) IsUnknown() bool { return e.unknown }

func (e EmailAddress) String() string {
	if e.unknown {
		return "unknown"
	}
	return e.email
}

func containsControlChars(s string) bool {
	return strings.ContainsFunc(s, unicode.IsControl)
}
