package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Common errors returned by the authentication subsystem.
var (
	ErrDisabled         = errors.New("authentication disabled")
	ErrInvalidToken     = errors.New("invalid token")
	ErrMissingToken     = errors.New("missing bearer token")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSubjectRevoked   = errors.New("subject is disabled")
)

// Permissions understood by the API. They follow the "resource:action"
// form; "resource:*" grants every action on a resource and "*" grants all.
const (
	PermToolsRead    = "tools:read"
	PermToolsExecute = "tools:execute"
	PermJobsWrite    = "jobs:write"
	PermChat         = "chat"
)

// Subject is the caller behind a bearer token and is passed to request
// handlers via context.
type Subject struct {
	Name        string
	Permissions []string
	Disabled    bool
}

// HasPermission reports whether any granted permission covers the requested one.
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	want := canonical(permission)
	resource, _, _ := strings.Cut(want, ":")
	for _, granted := range s.Permissions {
		switch canonical(granted) {
		case "*", want, resource + ":*":
			return true
		}
	}
	return false
}

// Authorize ensures the subject holds every permission in perms. Empty
// entries are ignored.
func (s *Subject) Authorize(perms ...string) error {
	switch {
	case s == nil:
		return ErrInvalidToken
	case s.Disabled:
		return ErrSubjectRevoked
	}
	for _, perm := range perms {
		if perm != "" && !s.HasPermission(perm) {
			return fmt.Errorf("%w: missing %s", ErrPermissionDenied, perm)
		}
	}
	return nil
}

// Clone returns a deep copy so handlers cannot mutate the configured subject.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Permissions = slices.Clone(s.Permissions)
	return &clone
}

func canonical(permission string) string {
	return strings.ToLower(strings.TrimSpace(permission))
}

// Mode enumerates the supported authentication modes.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeToken    Mode = "token"
)

// Token is a static API token. Exactly one of Token (plain text) or SHA256
// (hex digest, see HashToken) is expected.
type Token struct {
	Name        string
	Token       string
	SHA256      string
	Permissions []string
	Disabled    bool
}

// Config configures the authentication service.
type Config struct {
	Mode   Mode
	Tokens []Token
}
