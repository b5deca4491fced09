package auth

import "strings"

// Actor is the resolved identity of the caller of a ledger operation.
type Actor struct {
	UserID   string
	UserName string
}

// NewActor builds an Actor, preferring the display name and falling back to email.
func NewActor(userID, displayName, email string) Actor {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = strings.TrimSpace(email)
	}
	return Actor{UserID: strings.TrimSpace(userID), UserName: name}
}

// Valid reports whether the actor carries a user identifier.
func (a Actor) Valid() bool {
	return a.UserID != ""
}
