package processor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"sync-server/internal/observability"
	"sync-server/internal/platforms"
	"sync-server/internal/store"

	"github.com/google/uuid"
)

// stateTTL bounds how long an authorize round trip may take
const stateTTL = 10 * time.Minute

// OAuthStore defines the database operations required by OAuthProcessor
type OAuthStore interface {
	GetIntegrationByID(ctx context.Context, id uuid.UUID) (store.Integration, error)
	UpdateIntegrationConfig(ctx context.Context, id uuid.UUID, config store.JSONB, isActive bool, lastSyncAt *time.Time) (store.Integration, error)
	UpdateIntegrationStatus(ctx context.Context, id uuid.UUID, status string, lastSyncAt *time.Time) error
	CreateOAuthState(ctx context.Context, params store.CreateOAuthStateParams) (store.OAuthState, error)
	GetOAuthStateByToken(ctx context.Context, token string) (store.OAuthState, error)
	DeleteOAuthState(ctx context.Context, id uuid.UUID) error
	DeleteExpiredOAuthStates(ctx context.Context, now time.Time) (int64, error)
}

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrInvalidState        = errors.New("invalid or expired oauth state")
	ErrOAuthNotSupported   = errors.New("platform does not support oauth")
)

// ConnectionStatus reports how usable an integration's stored tokens are
type ConnectionStatus struct {
	Provider   string     `json:"provider"`
	Connected  bool       `json:"connected"`
	Status     string     `json:"status"`
	IsActive   bool       `json:"is_active"`
	LastSyncAt *time.Time `json:"last_sync_at"`
}

type OAuthProcessor struct {
	store    OAuthStore
	registry *platforms.Registry
	logger   *observability.Logger
}

func New(store OAuthStore, registry *platforms.Registry, logger *observability.Logger) OAuthProcessor {
	return OAuthProcessor{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// StartOAuth creates a single-use state token and returns the provider
// authorize URL to redirect the user to.
func (p *OAuthProcessor) StartOAuth(ctx context.Context, integrationID uuid.UUID, redirectURI string) (string, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "integration_id", Value: integrationID.String()},
	)

	integration, err := p.store.GetIntegrationByID(ctx, integrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrIntegrationNotFound
		}
		p.logger.Error(ctx, "failed to load integration", err)
		return "", err
	}

	adapter, err := p.registry.Get(integration.Provider)
	if err != nil {
		return "", err
	}

	state, err := generateStateToken()
	if err != nil {
		p.logger.Error(ctx, "failed to generate state token", err)
		return "", err
	}

	if _, err := p.store.CreateOAuthState(ctx, store.CreateOAuthStateParams{
		IntegrationID: integration.ID,
		State:         state,
		RedirectURI:   redirectURI,
		ExpiresAt:     time.Now().UTC().Add(stateTTL),
	}); err != nil {
		p.logger.Error(ctx, "failed to persist oauth state", err)
		return "", err
	}

	authURL, err := adapter.GetAuthURL(redirectURI, state)
	if err != nil {
		if errors.Is(err, platforms.ErrOAuthNotSupported) {
			return "", ErrOAuthNotSupported
		}
		p.logger.Error(ctx, "failed to build auth url", err)
		return "", err
	}

	p.logger.Info(ctx, "oauth flow started")
	return authURL, nil
}

// HandleCallback consumes the state token, exchanges the authorization code
// and merges the token payload into the integration config. The state row is
// deleted before the exchange so a replayed callback always fails. On success
// it returns the redirect URI the flow was started with.
func (p *OAuthProcessor) HandleCallback(ctx context.Context, stateToken, code string) (store.Integration, string, error) {
	oauthState, err := p.store.GetOAuthStateByToken(ctx, stateToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Integration{}, "", ErrInvalidState
		}
		p.logger.Error(ctx, "failed to load oauth state", err)
		return store.Integration{}, "", err
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "integration_id", Value: oauthState.IntegrationID.String()},
	)

	if err := p.store.DeleteOAuthState(ctx, oauthState.ID); err != nil {
		p.logger.Error(ctx, "failed to consume oauth state", err)
		return store.Integration{}, "", err
	}

	if time.Now().UTC().After(oauthState.ExpiresAt) {
		p.logger.Warn(ctx, "oauth state expired")
		return store.Integration{}, "", ErrInvalidState
	}

	integration, err := p.store.GetIntegrationByID(ctx, oauthState.IntegrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Integration{}, "", ErrIntegrationNotFound
		}
		p.logger.Error(ctx, "failed to load integration", err)
		return store.Integration{}, "", err
	}

	adapter, err := p.registry.Get(integration.Provider)
	if err != nil {
		return store.Integration{}, "", err
	}

	payload, err := adapter.ExchangeCode(ctx, code, oauthState.RedirectURI)
	if err != nil {
		p.logger.Error(ctx, "failed to exchange authorization code", err)
		return store.Integration{}, "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	config := mergeTokenPayload(integration.Config, payload)
	now := time.Now().UTC()
	updated, err := p.store.UpdateIntegrationConfig(ctx, integration.ID, config, true, &now)
	if err != nil {
		p.logger.Error(ctx, "failed to store token payload", err)
		return store.Integration{}, "", err
	}

	p.logger.Info(ctx, "oauth flow completed")
	return updated, oauthState.RedirectURI, nil
}

// RefreshToken refreshes the integration's stored tokens in place
func (p *OAuthProcessor) RefreshToken(ctx context.Context, integrationID uuid.UUID) (store.Integration, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "integration_id", Value: integrationID.String()},
	)

	integration, err := p.store.GetIntegrationByID(ctx, integrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Integration{}, ErrIntegrationNotFound
		}
		p.logger.Error(ctx, "failed to load integration", err)
		return store.Integration{}, err
	}

	adapter, err := p.registry.Get(integration.Provider)
	if err != nil {
		return store.Integration{}, err
	}

	creds := make(platforms.Credentials, len(integration.Credentials)+len(integration.Config))
	for k, v := range integration.Credentials {
		creds[k] = v
	}
	for k, v := range integration.Config {
		creds[k] = v
	}

	payload, err := adapter.RefreshToken(ctx, creds)
	if err != nil {
		p.logger.Error(ctx, "failed to refresh token", err)
		if statusErr := p.store.UpdateIntegrationStatus(ctx, integration.ID, store.IntegrationStatusError, nil); statusErr != nil {
			p.logger.Error(ctx, "failed to mark integration errored", statusErr)
		}
		return store.Integration{}, fmt.Errorf("failed to refresh token: %w", err)
	}

	config := mergeTokenPayload(integration.Config, payload)
	updated, err := p.store.UpdateIntegrationConfig(ctx, integration.ID, config, integration.IsActive, nil)
	if err != nil {
		p.logger.Error(ctx, "failed to store refreshed tokens", err)
		return store.Integration{}, err
	}

	p.logger.Info(ctx, "token refreshed")
	return updated, nil
}

// GetStatus reports whether the integration holds a usable token
func (p *OAuthProcessor) GetStatus(ctx context.Context, integrationID uuid.UUID) (ConnectionStatus, error) {
	integration, err := p.store.GetIntegrationByID(ctx, integrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ConnectionStatus{}, ErrIntegrationNotFound
		}
		p.logger.Error(ctx, "failed to load integration", err)
		return ConnectionStatus{}, err
	}

	_, hasToken := integration.Config["access_token"]
	return ConnectionStatus{
		Provider:   integration.Provider,
		Connected:  hasToken,
		Status:     integration.Status,
		IsActive:   integration.IsActive,
		LastSyncAt: integration.LastSyncAt,
	}, nil
}

// PurgeExpiredStates removes state tokens whose window has passed
func (p *OAuthProcessor) PurgeExpiredStates(ctx context.Context) (int64, error) {
	purged, err := p.store.DeleteExpiredOAuthStates(ctx, time.Now().UTC())
	if err != nil {
		p.logger.Error(ctx, "failed to purge expired oauth states", err)
		return 0, err
	}
	return purged, nil
}

// generateStateToken returns 32 random bytes hex-encoded
func generateStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// mergeTokenPayload overlays a token response onto the existing config
func mergeTokenPayload(config store.JSONB, payload platforms.TokenPayload) store.JSONB {
	merged := make(store.JSONB, len(config)+len(payload))
	for k, v := range config {
		merged[k] = v
	}
	for k, v := range payload {
		merged[k] = v
	}
	return merged
}
