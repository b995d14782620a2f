package validator

import (
	"encoding/json"
	"regexp"
)

var emailRegexp = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")

// Error is returned when one or more input fields are invalid. Fields maps
// the field name to the first failure recorded for it.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	data, err := json.Marshal(e.Fields)
	if err != nil {
		return "validation error"
	}
	return "validation error: " + string(data)
}

type Validator struct {
	errors map[string]string
}

func New() *Validator {
	return &Validator{
		errors: make(map[string]string),
	}
}

// Err returns nil when no check failed.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return &Error{Fields: v.errors}
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) != 0
}

func (v *Validator) Check(cond bool, key, msg string) {
	if cond {
		return
	}
	if _, ok := v.errors[key]; !ok {
		v.errors[key] = msg
	}
}

func (v *Validator) CheckEmail(email string) {
	v.Check(email != "", "email", "must be provided")
	v.Check(emailRegexp.MatchString(email), "email", "must be a valid email address")
}

func (v *Validator) CheckPassword(password string) {
	v.Check(password != "", "password", "must be provided")
	v.Check(len(password) >= 6, "password", "must be atleast 6 characters long")
	v.Check(len(password) <= 72, "password", "must be atmost 72 characters long")
}

func (v *Validator) CheckName(name string) {
	v.Check(name != "", "name", "must be provided")
	v.Check(len([]rune(name)) >= 2, "name", "must be atleast 2 characters long")
	v.Check(len([]rune(name)) <= 50, "name", "must be atmost 50 characters long")
}
