// Package auth holds the gateway's two identity concerns: resolving
// bearer tokens to participant ids, and allocating fresh participant
// ids from a requested base. They live together because both are
// consulted only by the register and request paths.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/agoralabs/agora/internal/storage"
)

// ErrInvalidToken is returned for empty, unknown, or revoked tokens.
// The gateway maps it to 401.
var ErrInvalidToken = errors.New("invalid token")

// IssueToken returns a fresh opaque bearer token. Tokens carry no
// structure; the participant row is the only binding.
func IssueToken() string {
	return uuid.NewString()
}

// Authenticator resolves bearer tokens against the participant table.
type Authenticator struct {
	participants storage.ParticipantStore
}

// NewAuthenticator returns an Authenticator over participants.
func NewAuthenticator(participants storage.ParticipantStore) *Authenticator {
	return &Authenticator{participants: participants}
}

// Authenticate returns the participant id a token was issued to.
// Unknown and empty tokens yield ErrInvalidToken; storage congestion
// passes through untranslated so the transport can signal retry.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	p, err := a.participants.GetByToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// Revoke clears the token bound to id. The participant stays
// registered; it just cannot authenticate until a new token is set.
func (a *Authenticator) Revoke(ctx context.Context, id string) error {
	_, err := a.participants.Update(ctx, id, map[string]any{
		storage.UpdateKeyAuthToken: nil,
	})
	return err
}
