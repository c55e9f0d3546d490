package aps

import "context"

// TokenProvider supplies a valid APS access token for a user. The OAuth
// exchange and refresh flow lives outside this package; the gateway only
// requires that EnsureValidToken returns a token usable for the next call,
// or an error when no user or refresh token is available.
type TokenProvider interface {
	EnsureValidToken(ctx context.Context, userID string) (string, error)
}
