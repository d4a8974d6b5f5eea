package authgate

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var loginPattern = regexp.MustCompile(`^\w+$`)

const (
	loginMinLen    = 3
	loginMaxLen    = 16
	passwordMinLen = 8
	passwordMaxLen = 16
)

// Validate checks field formats. It does not compare the password with its
// confirmation; Register reports that separately.
func (r RegisterRequest) Validate() error {
	verr := &ValidationError{}

	n := utf8.RuneCountInString(r.Login)
	switch {
	case strings.TrimSpace(r.Login) == "":
		verr.Add("login", "must not be blank")
	case n < loginMinLen || n > loginMaxLen:
		verr.Add("login", "size must be between 3 and 16")
	case !loginPattern.MatchString(r.Login):
		verr.Add("login", `must match "^\w+$"`)
	}

	if strings.TrimSpace(r.Email) == "" {
		verr.Add("email", "must not be blank")
	} else if !validEmail(r.Email) {
		verr.Add("email", "must be a well-formed email address")
	}

	n = utf8.RuneCountInString(r.Password)
	if n < passwordMinLen || n > passwordMaxLen {
		verr.Add("password", "size must be between 8 and 16")
	}

	if strings.TrimSpace(r.PasswordConfirmation) == "" {
		verr.Add("password_confirmation", "must not be blank")
	}

	switch {
	case r.Role == "":
		verr.Add("role", "must not be null")
	case !r.Role.Valid():
		verr.Add("role", "must be one of USER, MODERATOR, ADMIN")
	}

	return verr.Err()
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && addr.Name == ""
}

func validateLogin(loginOrEmail, password string) error {
	verr := &ValidationError{}
	if strings.TrimSpace(loginOrEmail) == "" {
		verr.Add("login", "must not be blank")
	}
	if strings.TrimSpace(password) == "" {
		verr.Add("password", "must not be blank")
	}
	return verr.Err()
}
