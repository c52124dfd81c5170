package model

// RegisterParams holds the input of a password registration.
type RegisterParams struct {
	Email    string
	Password string
	Name     *string
}

// AppleFullName is the name Apple hands to the client on first authorization.
type AppleFullName struct {
	GivenName  *string
	FamilyName *string
}

// AppleSignIn holds the input of an Apple sign-in. Email and FullName come from
// the client and are not covered by Apple's signature.
type AppleSignIn struct {
	IdentityToken string
	Email         *string
	FullName      *AppleFullName
}
