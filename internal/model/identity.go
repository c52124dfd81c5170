package model

// GoogleClaims are the verified claims of a Google ID token.
// Google always returns an email for the scopes the app requests.
type GoogleClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          *string
}

// Identity converts the claims into an ExternalIdentity.
func (c GoogleClaims) Identity() ExternalIdentity {
	email := NormalizeEmail(c.Email)
	return ExternalIdentity{
		Provider:      AuthProviderGoogle,
		Subject:       c.Subject,
		Email:         &email,
		EmailVerified: c.EmailVerified,
		Name:          c.Name,
	}
}

// AppleClaims are the verified claims of an Apple identity token.
// Apple includes the email only on the first sign-in with a given client.
type AppleClaims struct {
	Subject        string
	Email          *string
	EmailVerified  bool
	IsPrivateEmail bool
}

// Identity converts the claims into an ExternalIdentity.
func (c AppleClaims) Identity() ExternalIdentity {
	identity := ExternalIdentity{
		Provider: AuthProviderApple,
		Subject:  c.Subject,
	}
	if c.Email != nil && *c.Email != "" {
		email := NormalizeEmail(*c.Email)
		identity.Email = &email
		identity.EmailVerified = c.EmailVerified
	}
	return identity
}

// ExternalIdentity is a provider-verified identity awaiting account resolution.
// It is never persisted.
type ExternalIdentity struct {
	Provider      AuthProvider
	Subject       string
	Email         *string
	EmailVerified bool
	Name          *string
}
