package services

import (
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 255
	maxNameLength     = 255
	maxTitleLength    = 255
	maxCommentLength  = 4000
)

func validateName(v *ValidationError, field, value string, limit int) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		v.Add(field, "must not be empty")
	case utf8.RuneCountInString(value) > limit:
		v.Add(field, "is too long")
	}
	return value
}

func validateEmail(v *ValidationError, value string) string {
	value = strings.TrimSpace(value)
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		v.Add("email", "must be a valid email address")
		return value
	}
	return strings.ToLower(addr.Address)
}

func validatePassword(v *ValidationError, field, value string) {
	n := utf8.RuneCountInString(value)
	switch {
	case n < minPasswordLength:
		v.Add(field, "must be at least 8 characters")
	case n > maxPasswordLength:
		v.Add(field, "is too long")
	}
}

func validateHours(v *ValidationError, field string, value *float64) {
	if value != nil && *value < 0 {
		v.Add(field, "must not be negative")
	}
}

func validateURL(v *ValidationError, value string) {
	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() || u.Host == "" {
		v.Add("url", "must be an absolute url")
	}
}

func ptr[T any](v T) *T { return &v }
