package board

import (
	"fmt"
	"strings"
)

// AuthMode selects how much of the board requires a signed-in session
type AuthMode int

const (
	// AuthRequired shows nothing until the user signs in.
	AuthRequired AuthMode = iota
	// AuthOptional shows a read-only board and offers sign in.
	AuthOptional
	// AuthNone is a public board with no sign in at all.
	AuthNone
)

func (m AuthMode) String() string {
	switch m {
	case AuthRequired:
		return "required"
	case AuthOptional:
		return "optional"
	case AuthNone:
		return "none"
	}
	return fmt.Sprintf("AuthMode(%d)", int(m))
}

// ParseAuthMode parses "required", "optional" or "none"
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "required":
		return AuthRequired, nil
	case "optional":
		return AuthOptional, nil
	case "none", "public":
		return AuthNone, nil
	}
	return AuthRequired, fmt.Errorf("unknown auth mode %q (want required, optional or none)", s)
}

// Phase is the screen the controller is currently in
type Phase int

const (
	PhaseBooting Phase = iota
	PhaseUnreachable
	PhaseSignedOut
	PhaseBoard
)

func (p Phase) String() string {
	switch p {
	case PhaseBooting:
		return "booting"
	case PhaseUnreachable:
		return "unreachable"
	case PhaseSignedOut:
		return "signed-out"
	case PhaseBoard:
		return "board"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}
