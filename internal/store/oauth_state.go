package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateOAuthStateParams represents parameters for issuing a state token
type CreateOAuthStateParams struct {
	IntegrationID uuid.UUID
	State         string
	RedirectURI   string
	ExpiresAt     time.Time
}

const sqlCreateOAuthState = `
INSERT INTO oauth_states (integration_id, state, redirect_uri, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING id, integration_id, state, redirect_uri, expires_at, created_at
`

// CreateOAuthState persists a single-use CSRF state token
func (s *Store) CreateOAuthState(ctx context.Context, params CreateOAuthStateParams) (OAuthState, error) {
	var state OAuthState
	err := s.db.GetContext(ctx, &state, sqlCreateOAuthState,
		params.IntegrationID,
		params.State,
		params.RedirectURI,
		params.ExpiresAt)
	if err != nil {
		s.logger.Error(ctx, "failed to create oauth state", err)
		return OAuthState{}, fmt.Errorf("failed to create oauth state: %w", err)
	}
	return state, nil
}

const sqlGetOAuthStateByToken = `
SELECT id, integration_id, state, redirect_uri, expires_at, created_at
FROM oauth_states
WHERE state = $1
`

// GetOAuthStateByToken retrieves a state row by its token value. Callers must
// still check expiry; a missing row means consumed or never issued.
func (s *Store) GetOAuthStateByToken(ctx context.Context, token string) (OAuthState, error) {
	var state OAuthState
	err := s.db.GetContext(ctx, &state, sqlGetOAuthStateByToken, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OAuthState{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get oauth state by token", err)
		return OAuthState{}, fmt.Errorf("failed to get oauth state by token: %w", err)
	}
	return state, nil
}

const sqlDeleteOAuthState = `
DELETE FROM oauth_states
WHERE id = $1
`

// DeleteOAuthState removes a state row. Deletion on successful callback is
// what enforces single use.
func (s *Store) DeleteOAuthState(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, sqlDeleteOAuthState, id)
	if err != nil {
		s.logger.Error(ctx, "failed to delete oauth state", err)
		return fmt.Errorf("failed to delete oauth state: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		s.logger.Error(ctx, "failed to get rows affected", err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const sqlDeleteExpiredOAuthStates = `
DELETE FROM oauth_states
WHERE expires_at <= $1
`

// DeleteExpiredOAuthStates garbage-collects expired state rows
func (s *Store) DeleteExpiredOAuthStates(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlDeleteExpiredOAuthStates, now)
	if err != nil {
		s.logger.Error(ctx, "failed to delete expired oauth states", err)
		return 0, fmt.Errorf("failed to delete expired oauth states: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		s.logger.Error(ctx, "failed to get rows affected", err)
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
