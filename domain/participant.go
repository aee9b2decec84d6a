// Package domain contains core concepts of the team chat.
// This file defines the identity stamped on a connection.
// No runtime, network, or UI logic should be added here.
package domain

// UnknownUsername is displayed for senders without any resolvable name.
const UnknownUsername = "Unknown"

// Identity is resolved once at connect time and never changes afterwards.
type Identity struct {
	UserID    string
	Username  string
	Roles     []string
	Anonymous bool
}

func AnonymousIdentity(displayName string) Identity {
	if displayName == "" {
		displayName = UnknownUsername
	}
	return Identity{Username: displayName, Anonymous: true}
}

// DisplayName never returns an empty string.
func (i Identity) DisplayName() string {
	switch {
	case i.Username != "":
		return i.Username
	case i.UserID != "":
		return i.UserID
	default:
		return UnknownUsername
	}
}
