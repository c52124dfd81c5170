package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/model"
)

const maxBodyBytes = 64 << 10

// AuthService defines sign-in operations.
type AuthService interface {
	Register(ctx context.Context, params model.RegisterParams) (model.Session, error)
	Login(ctx context.Context, email, password string) (model.Session, error)
	SignInWithGoogle(ctx context.Context, idToken string) (model.Session, error)
	SignInWithApple(ctx context.Context, params model.AppleSignIn) (model.Session, error)
	Me(ctx context.Context, userID uuid.UUID) (model.User, error)
}

type registerRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleRequest struct {
	IDToken string `json:"idToken"`
}

type appleFullName struct {
	GivenName  *string `json:"givenName"`
	FamilyName *string `json:"familyName"`
}

type appleRequest struct {
	IdentityToken string         `json:"identityToken"`
	FullName      *appleFullName `json:"fullName"`
	Email         *string        `json:"email"`
}

type userResponse struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	Name               *string   `json:"name,omitempty"`
	AuthProvider       string    `json:"authProvider"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
	CreatedAt          time.Time `json:"createdAt"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

// Auth serves the /auth endpoints.
type Auth struct {
	authService    AuthService
	contextManager model.ContextManager
	logger         *logger.Logger
}

func NewAuth(authService AuthService, contextManager model.ContextManager, logger *logger.Logger) *Auth {
	return &Auth{
		authService:    authService,
		contextManager: contextManager,
		logger:         logger,
	}
}

// Register handles POST /auth/register.
func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	session, err := h.authService.Register(r.Context(), model.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Login handles POST /auth/login.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	session, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Google handles POST /auth/google.
func (h *Auth) Google(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := decode(w, r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	if req.IDToken == "" {
		handleError(w, h.logger, fmt.Errorf("%w: idToken is required", model.ErrInvalidInput))
		return
	}

	session, err := h.authService.SignInWithGoogle(r.Context(), req.IDToken)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Apple handles POST /auth/apple.
func (h *Auth) Apple(w http.ResponseWriter, r *http.Request) {
	var req appleRequest
	if err := decode(w, r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	if req.IdentityToken == "" {
		handleError(w, h.logger, fmt.Errorf("%w: identityToken is required", model.ErrInvalidInput))
		return
	}

	params := model.AppleSignIn{
		IdentityToken: req.IdentityToken,
		Email:         req.Email,
	}
	if req.FullName != nil {
		params.FullName = &model.AppleFullName{
			GivenName:  req.FullName.GivenName,
			FamilyName: req.FullName.FamilyName,
		}
	}

	session, err := h.authService.SignInWithApple(r.Context(), params)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Me handles GET /auth/me. It must be mounted behind the Authenticate middleware.
func (h *Auth) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextManager.GetUserIDFromContext(r.Context())
	if !ok {
		handleError(w, h.logger, model.ErrTokenMalformed)
		return
	}

	user, err := h.authService.Me(r.Context(), userID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(user)})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", model.ErrInvalidInput)
	}
	return nil
}

func toSessionResponse(session model.Session) sessionResponse {
	return sessionResponse{
		Token: session.Token,
		User:  toUserResponse(session.User),
	}
}

func toUserResponse(user model.User) userResponse {
	return userResponse{
		ID:                 user.ID,
		Email:              user.Email,
		Name:               user.Name,
		AuthProvider:       string(user.AuthProvider),
		SubscriptionStatus: string(user.SubscriptionStatus),
		CreatedAt:          user.CreatedAt.UTC(),
	}
}
