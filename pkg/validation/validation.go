// Package validation carries the field-level failure taxonomy shared by all
// command validators. Validators run before any mutation; an empty failure
// list means the command may proceed.
package validation

import (
	"net/mail"
	"net/url"
	"strings"
)

// Error codes surfaced to callers. Conflict-shaped codes (DuplicateName,
// DuplicateEmail, OnlyOneOwner) are detected at write time but reported in
// the same shape as validation failures.
const (
	CodeNotEmpty              = "NotEmpty"
	CodeInvalidEmail          = "InvalidEmail"
	CodeInvalidUri            = "InvalidUri"
	CodeResponseTypeIsInvalid = "ResponseTypeIsInvalid"
	CodeRoleIsInvalid         = "RoleIsInvalid"
	CodeAccountNotFound       = "AccountNotFound"
	CodeNotAuthorized         = "NotAuthorized"
	CodeOnlyOneOwner          = "OnlyOneOwner"
	CodeDuplicateEmail        = "DuplicateEmail"
	CodeDuplicateName         = "DuplicateName"
	CodeInvitationExpired     = "InvitationExpired"
	CodeInvitationNotFound    = "InvitationNotFound"
	CodeInvalidCredentials    = "InvalidCredentials"
	CodeUserNotFound          = "UserNotFound"
	CodeInvalidToken          = "InvalidToken"
	CodePasswordTooShort      = "PasswordTooShort"
	CodeTwoFactorRequired     = "TwoFactorRequired"
	CodeEmailNotConfirmed     = "EmailNotConfirmed"
)

// Failure describes one rejected field.
type Failure struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errors is an ordered failure list. It implements error so services can
// return it alongside infrastructure errors without a second channel.
type Errors []Failure

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e))
	for _, f := range e {
		parts = append(parts, f.Field+": "+f.Code)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Fail appends a failure with a default message derived from the code.
func (e Errors) Fail(field, code, message string) Errors {
	if message == "" {
		message = defaultMessage(field, code)
	}
	return append(e, Failure{Field: field, Code: code, Message: message})
}

// Has reports whether a failure with the given field and code is present.
func (e Errors) Has(field, code string) bool {
	for _, f := range e {
		if f.Field == field && f.Code == code {
			return true
		}
	}
	return false
}

// AsErrors unwraps err into Errors when it carries validation failures.
func AsErrors(err error) (Errors, bool) {
	if err == nil {
		return nil, false
	}
	if v, ok := err.(Errors); ok {
		return v, true
	}
	return nil, false
}

// NotEmpty rejects blank values.
func NotEmpty(e Errors, field, value string) Errors {
	if strings.TrimSpace(value) == "" {
		return e.Fail(field, CodeNotEmpty, "")
	}
	return e
}

// Email rejects values that do not parse as a single address. Blank values
// are left to NotEmpty so each field reports one failure per rule.
func Email(e Errors, field, value string) Errors {
	if strings.TrimSpace(value) == "" {
		return e
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return e.Fail(field, CodeInvalidEmail, "")
	}
	return e
}

// AbsoluteURL rejects values that are not absolute http(s) URLs.
func AbsoluteURL(e Errors, field, value string) Errors {
	if strings.TrimSpace(value) == "" {
		return e
	}
	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return e.Fail(field, CodeInvalidUri, "")
	}
	return e
}

func defaultMessage(field, code string) string {
	switch code {
	case CodeNotEmpty:
		return field + " must not be empty"
	case CodeInvalidEmail:
		return field + " must be a valid email address"
	case CodeInvalidUri:
		return field + " must be an absolute URL"
	case CodeResponseTypeIsInvalid:
		return field + " is not an allowed response type"
	case CodeAccountNotFound:
		return "account does not exist"
	case CodeNotAuthorized:
		return "not authorized"
	case CodeOnlyOneOwner:
		return "an account can only have one owner"
	case CodeDuplicateEmail:
		return "email is already registered"
	case CodeDuplicateName:
		return "name is already taken"
	case CodeInvitationExpired:
		return "invitation has expired"
	case CodeInvitationNotFound:
		return "invitation does not exist"
	case CodeInvalidCredentials:
		return "invalid email or password"
	case CodeUserNotFound:
		return "user does not exist"
	case CodeInvalidToken:
		return "token is invalid or has expired"
	case CodePasswordTooShort:
		return field + " is too short"
	case CodeTwoFactorRequired:
		return "two-factor verification required"
	case CodeEmailNotConfirmed:
		return "email address has not been confirmed"
	default:
		return field + " is invalid"
	}
}
