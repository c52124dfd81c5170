package model

import "time"

// DefaultSessionTTL is the lifetime of a session token.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Session is the result of a successful sign-in.
type Session struct {
	Token string
	User  User
}
