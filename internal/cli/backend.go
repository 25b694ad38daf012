package cli

import (
	"context"
	"fmt"
	"log/slog"

	"gtodo/internal/backend/googletasks"
	"gtodo/internal/backend/rest"
	"gtodo/internal/config"
	"gtodo/internal/service"
)

// ErrNotLoggedIn is returned by the google backend without a stored token.
var ErrNotLoggedIn = fmt.Errorf("not logged in (run: %s login)", config.AppName)

// DefaultServiceFactory picks the backend named by cfg.Backend.
func DefaultServiceFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.Service, error) {
	switch cfg.Backend {
	case config.BackendGoogle:
		if !cfg.HasOAuthClient() {
			return nil, authFailure(fmt.Errorf("oauth_client.json not found in %s", cfg.Dir))
		}
		if !cfg.HasToken() {
			return nil, authFailure(ErrNotLoggedIn)
		}
		svc, err := googletasks.New(ctx, cfg, logger)
		if err != nil {
			return nil, authFailure(err)
		}
		return svc, nil
	case config.BackendREST, "":
		svc, err := rest.New(cfg, logger)
		if err != nil {
			return nil, authFailure(err)
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

func authFailure(err error) error {
	return &service.Error{Kind: service.ErrAuth, Op: "connect", Message: err.Error(), Err: err}
}
