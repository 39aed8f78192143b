package service

import (
	"context"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/google/uuid"
)

// actor returns the authenticated user of the request
func actor(ctx context.Context) (*auth.UserContext, error) {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// capabilities returns the resolved capabilities of the request, resolving them on
// the fly when the location middleware did not run.
func capabilities(ctx context.Context) (*auth.Capabilities, error) {
	if caps, ok := auth.CapabilitiesFromContext(ctx); ok {
		return caps, nil
	}
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	return auth.ResolveCapabilities(user, nil)
}

// performerID returns the user recorded as performer of a ledger movement
func performerID(ctx context.Context) uuid.UUID {
	if user, ok := auth.FromContext(ctx); ok {
		return user.UserID
	}
	return auth.SystemUserID
}
