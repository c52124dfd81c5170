package model

import (
	"context"

	"github.com/google/uuid"
)

// ContextManager carries the authenticated user id through a request.
// Routes behind the auth middleware read the principal only through it.
type ContextManager interface {
	SetUserIDToContext(ctx context.Context, userID uuid.UUID) context.Context
	GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool)
}
