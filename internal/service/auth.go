package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/model"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

const maxPasswordLength = 72 // bcrypt input limit

// GoogleVerifier validates Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (model.GoogleClaims, error)
}

// AppleVerifier validates Apple identity tokens.
type AppleVerifier interface {
	Verify(ctx context.Context, identityToken string) (model.AppleClaims, error)
}

// Auth implements password and provider sign-in on top of the user store.
type Auth struct {
	users        model.UserStore
	hasher       model.PasswordHasher
	google       GoogleVerifier
	apple        AppleVerifier
	linker       *AccountLinker
	tokenService *TokenService
	logger       *logger.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuth(
	users model.UserStore,
	hasher model.PasswordHasher,
	google GoogleVerifier,
	apple AppleVerifier,
	tokenService *TokenService,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		users:        users,
		hasher:       hasher,
		google:       google,
		apple:        apple,
		linker:       NewAccountLinker(users, logger),
		tokenService: tokenService,
		logger:       logger,
	}
}

// Register creates a password account and signs it in.
func (a *Auth) Register(ctx context.Context, params model.RegisterParams) (model.Session, error) {
	email := model.NormalizeEmail(params.Email)
	if err := validateEmail(email); err != nil {
		return model.Session{}, err
	}
	if utf8.RuneCountInString(params.Password) < MinPasswordLength {
		return model.Session{}, fmt.Errorf("%w: password must be at least %d characters", model.ErrInvalidInput, MinPasswordLength)
	}
	if len(params.Password) > maxPasswordLength {
		return model.Session{}, fmt.Errorf("%w: password is too long", model.ErrInvalidInput)
	}

	a.logger.Debug("Auth service: registering user",
		"email", email)

	_, err := a.users.GetByEmail(ctx, email)
	if err == nil {
		a.logger.Info("Auth service: email already registered",
			"email", email)
		return model.Session{}, model.ErrEmailTaken
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Session{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	hash, err := a.hasher.Hash(params.Password)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user, err := a.users.Create(ctx, model.User{
		ID:                 uuid.New(),
		Email:              email,
		PasswordHash:       &hash,
		AuthProvider:       model.AuthProviderNone,
		Name:               trimmed(params.Name),
		SubscriptionStatus: model.SubscriptionFree,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		if errors.Is(err, model.ErrAccountConflict) {
			return model.Session{}, model.ErrEmailTaken
		}
		a.logger.Error("Auth service: failed to create user",
			"email", email,
			"error", err.Error())
		return model.Session{}, fmt.Errorf("failed to create user: %w", err)
	}

	a.logger.Info("Auth service: user registered",
		"user_id", user.ID)

	return a.session(ctx, user)
}

// Login signs in a password account. Every failure reads as
// model.ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, email, password string) (model.Session, error) {
	email = model.NormalizeEmail(email)

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return model.Session{}, fmt.Errorf("failed to get user by email: %w", err)
		}
		a.compareDummy(password)
		a.logger.Info("Auth service: login for unknown email")
		return model.Session{}, model.ErrInvalidCredentials
	}

	if !user.HasPassword() {
		a.compareDummy(password)
		a.logger.Info("Auth service: password login on provider-only account",
			"user_id", user.ID,
			"provider", user.AuthProvider)
		return model.Session{}, model.ErrInvalidCredentials
	}

	if err := a.hasher.Compare(*user.PasswordHash, password); err != nil {
		a.logger.Info("Auth service: wrong password",
			"user_id", user.ID)
		return model.Session{}, model.ErrInvalidCredentials
	}

	return a.session(ctx, user)
}

// SignInWithGoogle verifies a Google ID token and signs in the matching user.
func (a *Auth) SignInWithGoogle(ctx context.Context, idToken string) (model.Session, error) {
	claims, err := a.google.Verify(ctx, idToken)
	if err != nil {
		a.logger.Info("Auth service: google token rejected",
			"error", err.Error())
		return model.Session{}, err
	}

	user, err := a.linker.Resolve(ctx, claims.Identity())
	if err != nil {
		return model.Session{}, err
	}

	return a.session(ctx, user)
}

// SignInWithApple verifies an Apple identity token and signs in the matching user.
// Apple sends the email and name only on the first authorization, so the client
// may forward them in the body. A body email can create an account but is never
// trusted to link an existing one.
func (a *Auth) SignInWithApple(ctx context.Context, params model.AppleSignIn) (model.Session, error) {
	claims, err := a.apple.Verify(ctx, params.IdentityToken)
	if err != nil {
		a.logger.Info("Auth service: apple token rejected",
			"error", err.Error())
		return model.Session{}, err
	}

	identity := claims.Identity()
	if identity.Email == nil && params.Email != nil {
		email := model.NormalizeEmail(*params.Email)
		if email != "" {
			if err := validateEmail(email); err != nil {
				return model.Session{}, err
			}
			identity.Email = &email
			identity.EmailVerified = false
		}
	}
	identity.Name = displayName(params.FullName)

	user, err := a.linker.Resolve(ctx, identity)
	if err != nil {
		return model.Session{}, err
	}

	return a.session(ctx, user)
}

// Me returns the user behind an authenticated request.
func (a *Auth) Me(ctx context.Context, userID uuid.UUID) (model.User, error) {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func (a *Auth) session(ctx context.Context, user model.User) (model.Session, error) {
	token, err := a.tokenService.Issue(ctx, user.ID)
	if err != nil {
		a.logger.Error("Auth service: failed to issue session",
			"user_id", user.ID,
			"error", err.Error())
		return model.Session{}, fmt.Errorf("failed to issue session: %w", err)
	}
	return model.Session{Token: token, User: user}, nil
}

// compareDummy spends the same bcrypt work as a real comparison.
func (a *Auth) compareDummy(password string) {
	a.dummyOnce.Do(func() {
		hash, err := a.hasher.Hash(uuid.NewString())
		if err == nil {
			a.dummyHash = hash
		}
	})
	if a.dummyHash != "" {
		_ = a.hasher.Compare(a.dummyHash, password)
	}
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", model.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: malformed email", model.ErrInvalidInput)
	}
	return nil
}

func displayName(n *model.AppleFullName) *string {
	if n == nil {
		return nil
	}
	var parts []string
	for _, p := range []*string{n.GivenName, n.FamilyName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	name := strings.Join(parts, " ")
	return &name
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
