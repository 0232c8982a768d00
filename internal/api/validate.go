package api

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxNameLen is the maximum length for name fields.
const maxNameLen = 200

// maxDestinationLen is the maximum length for dial destinations and SIP URIs.
const maxDestinationLen = 255

// maxEmailLen is the maximum length for email addresses (RFC 5321).
const maxEmailLen = 254

// maxPasswordLen is the maximum length for passwords.
const maxPasswordLen = 256

// minPasswordLen is the minimum length for admin passwords.
const minPasswordLen = 8

// maxNotesLen is the maximum length for free-text notes.
const maxNotesLen = 1000

// emailRe is a basic email format regex. Not exhaustive; validates structure only.
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// phoneRe validates phone numbers: optional +, digits, spaces, dashes, parens.
var phoneRe = regexp.MustCompile(`^\+?[\d\s\-().]{2,30}$`)

// usernameRe validates admin usernames: letters, digits, dot, dash, underscore.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9._\-]{3,40}$`)

// validateStringLen checks that a string does not exceed maxLen runes.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed maxLen runes.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validateEmail checks that a string is a valid-looking email address.
// Empty is allowed (optional field).
func validateEmail(field, value string) string {
	if value == "" {
		return ""
	}
	if len(value) > maxEmailLen {
		return field + " exceeds maximum length"
	}
	if !emailRe.MatchString(value) {
		return field + " is not a valid email address"
	}
	return ""
}

// validatePhone checks that a string looks like a phone number.
// Empty is allowed (optional field).
func validatePhone(field, value string) string {
	if value == "" {
		return ""
	}
	if !phoneRe.MatchString(value) {
		return field + " is not a valid phone number"
	}
	return ""
}

// validateSIPURI checks that a string is a plausible contact SIP URI: either
// sip:user@host or a bare user@host. Bare numbers are also accepted since
// the dialer completes them against the account domain.
func validateSIPURI(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if errMsg := validateStringLen(field, value, maxDestinationLen); errMsg != "" {
		return errMsg
	}
	v := strings.TrimPrefix(strings.TrimPrefix(value, "sips:"), "sip:")
	if v == "" || strings.ContainsAny(v, " \t\n\r") {
		return field + " is not a valid sip uri"
	}
	if i := strings.IndexByte(v, '@'); i == 0 || i == len(v)-1 {
		return field + " is not a valid sip uri"
	}
	return ""
}

// validateUsername checks an admin username.
func validateUsername(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !usernameRe.MatchString(value) {
		return field + " must be 3-40 characters: letters, digits, dot, dash, underscore"
	}
	return ""
}

// validatePassword checks an admin password.
func validatePassword(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if utf8.RuneCountInString(value) < minPasswordLen {
		return field + " must be at least 8 characters"
	}
	return validateStringLen(field, value, maxPasswordLen)
}
