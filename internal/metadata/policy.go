package metadata

import (
	"fmt"
	"strings"
)

const (
	// DefaultStubRoom is the room reported for unknown cameras by the
	// static catalog.
	DefaultStubRoom = "shop front"

	policyFail    = "fail"
	policyDefault = "default:"
)

// MissingPolicy decides what a store does when a camera id is unknown:
// fail with ErrNotFound, or report a fixed default room.
type MissingPolicy struct {
	useDefault bool
	room       string
}

// Fail returns the policy that reports ErrNotFound for unknown cameras.
func Fail() MissingPolicy {
	return MissingPolicy{}
}

// DefaultTo returns the policy that reports room for unknown cameras.
func DefaultTo(room string) MissingPolicy {
	return MissingPolicy{useDefault: true, room: room}
}

// ParseMissingPolicy parses "fail" or "default:<room>". An empty string
// yields fallback.
func ParseMissingPolicy(s string, fallback MissingPolicy) (MissingPolicy, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return fallback, nil
	case strings.EqualFold(s, policyFail):
		return Fail(), nil
	case strings.HasPrefix(strings.ToLower(s), policyDefault):
		room := strings.TrimSpace(s[len(policyDefault):])
		if room == "" {
			return MissingPolicy{}, fmt.Errorf("invalid on-missing policy %q: default room is empty", s)
		}
		return DefaultTo(room), nil
	default:
		return MissingPolicy{}, fmt.Errorf("invalid on-missing policy %q: want %q or %q", s, policyFail, policyDefault+"<room>")
	}
}

// Defaults reports whether the policy substitutes a default room.
func (p MissingPolicy) Defaults() bool {
	return p.useDefault
}

func (p MissingPolicy) String() string {
	if p.useDefault {
		return policyDefault + p.room
	}
	return policyFail
}

func (p MissingPolicy) resolve(cameraID string) (string, error) {
	if p.useDefault {
		return p.room, nil
	}
	return "", fmt.Errorf("camera %q: %w", cameraID, ErrNotFound)
}
