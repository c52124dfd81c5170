package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/metrics"
	"github.com/dtroode/wingcoach-server/internal/model"
)

// TokenService issues and checks session tokens. Sessions are stateless:
// nothing is persisted and a token stays valid until it expires.
type TokenService struct {
	manager model.TokenManager
	metrics metrics.Recorder
	logger  *logger.Logger
}

func NewTokenService(manager model.TokenManager, recorder metrics.Recorder, logger *logger.Logger) *TokenService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &TokenService{manager: manager, metrics: recorder, logger: logger}
}

// Issue mints a session token for the user.
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	token, err := s.manager.Mint(userID)
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	s.metrics.RecordSessionIssued()
	return token, nil
}

// GetUserID verifies a session token and returns its user ID.
func (s *TokenService) GetUserID(ctx context.Context, token string) (uuid.UUID, error) {
	userID, err := s.manager.Verify(token)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, model.ErrTokenExpired) {
			reason = "expired"
		}
		s.metrics.RecordSessionRejected(reason)
		s.logger.Debug("Token service: session token rejected",
			"reason", reason,
			"error", err.Error())
		return uuid.Nil, err
	}
	return userID, nil
}
