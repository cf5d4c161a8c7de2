package models

import (
	"errors"
	"net/mail"
	"strings"
)

// Role is the platform role of an authenticated user.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Identity is the cached profile of the signed-in user.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role,omitempty"`
}

// AuthSession is a bearer token together with the identity it belongs to.
type AuthSession struct {
	AccessToken string   `json:"access_token"`
	Identity    Identity `json:"identity"`
}

// Authenticated reports whether the session carries a usable token.
func (a *AuthSession) Authenticated() bool {
	return a != nil && a.AccessToken != ""
}

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 8

var (
	ErrEmptyName        = errors.New("full name is required")
	ErrEmptyEmail       = errors.New("email is required")
	ErrInvalidEmail     = errors.New("please enter a valid email")
	ErrEmptyState       = errors.New("state is required")
	ErrEmptyPassword    = errors.New("password is required")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
)

// Signup is the account form filled in by an anonymous patient.
type Signup struct {
	FullName string
	Email    string
	Password string
	Phone    string
	State    string
}

// Validate mirrors the signup form checks. The first failing field wins.
func (s Signup) Validate() error {
	if strings.TrimSpace(s.FullName) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(s.Email) == "" {
		return ErrEmptyEmail
	}
	if !isValidEmail(s.Email) {
		return ErrInvalidEmail
	}
	if strings.TrimSpace(s.State) == "" {
		return ErrEmptyState
	}
	if s.Password == "" {
		return ErrEmptyPassword
	}
	if len(s.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// SplitName splits a full name into first name and the remainder.
func SplitName(full string) (first, last string) {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// JoinName combines first and last names, skipping empty parts.
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(first+" "+last), " "))
}

func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return false
	}
	at := strings.LastIndex(addr.Address, "@")
	return at > 0 && strings.Contains(addr.Address[at:], ".")
}
