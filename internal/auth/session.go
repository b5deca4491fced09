package auth

import "github.com/golang-jwt/jwt/v5"

const defaultSessionIssuer = "chipledger-auth"

// SessionClaims is the JWT payload stored in the session cookie.
type SessionClaims struct {
	UserID          string `json:"user_id"`
	UserEmail       string `json:"user_email"`
	UserDisplayName string `json:"user_display_name"`
	jwt.RegisteredClaims
}

// Actor returns the identity the claims describe.
func (c SessionClaims) Actor() Actor {
	return NewActor(c.UserID, c.UserDisplayName, c.UserEmail)
}
