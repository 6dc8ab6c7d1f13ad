package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/credentials"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/providers"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/server"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/urfave/cli/v3"
)

// authorizerFor looks up the service and asserts it supports the OAuth flow.
func (r *Runner) authorizerFor(id string) (providers.Provider, providers.Authorizer, error) {
	if !r.registry.IsSupported(id) {
		return nil, nil, fmt.Errorf("%w: unknown service %q", shared.ErrInvalidInput, id)
	}

	provider := r.registry.Get(models.ServiceType(id))
	authorizer, ok := provider.(providers.Authorizer)
	if !ok || !provider.Config().SupportsOAuth {
		return nil, nil, fmt.Errorf("%w: %s does not use OAuth", shared.ErrUnsupportedOp, provider.Service())
	}

	return provider, authorizer, nil
}

// AuthLogin runs the authorization code flow for a service. A local HTTP
// server receives the callback and the exchanged tokens are persisted by
// the adapter's token manager.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	serviceID := cmd.StringArg("service")
	if serviceID == "" {
		return fmt.Errorf("%w: service", shared.ErrMissingArgument)
	}

	provider, authorizer, err := r.authorizerFor(serviceID)
	if err != nil {
		return err
	}

	state := shared.GenerateID()
	authURL, err := authorizer.AuthorizationURL(state)
	if err != nil {
		return fmt.Errorf("failed to build authorization URL: %w", err)
	}

	oauthHandler := server.NewOAuthHandler(authorizer, state)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(oauthHandler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server for %s at %v", provider.Service(), serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	r.writePlain("Open this URL in your browser to authorize %s:\n\n%s\n\n", provider.Service(), authURL)
	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return fmt.Errorf("callback server error: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrAuthFailed)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down callback server", "error", err)
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}

	return r.writePlain("✓ %s authorized, tokens saved\n", provider.Service())
}

// AuthStatus reports the stored token state for every registered service.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	for _, st := range r.registry.Services() {
		provider := r.registry.Get(st)
		if !provider.Config().SupportsOAuth {
			r.writePlain("%s: no authentication required\n", st)
			continue
		}

		token, err := credentials.LoadToken(r.credStore, st)
		if err != nil {
			r.logger.Warn("failed to read stored token", "service", st, "error", err)
			r.writePlain("%s: ✗ unreadable token record\n", st)
			continue
		}
		if token == nil {
			r.writePlain("%s: ✗ not authenticated\n", st)
			continue
		}

		if token.Expired(time.Now(), 0) {
			r.writePlain("%s: ✓ authenticated (access token expired, will refresh)\n", st)
		} else {
			r.writePlain("%s: ✓ authenticated (expires %s)\n", st, token.ExpiresAt.Format(time.RFC3339))
		}
	}

	return nil
}

// AuthDisconnect erases stored tokens for a service.
func (r *Runner) AuthDisconnect(ctx context.Context, cmd *cli.Command) error {
	serviceID := cmd.StringArg("service")
	if serviceID == "" {
		return fmt.Errorf("%w: service", shared.ErrMissingArgument)
	}

	provider, authorizer, err := r.authorizerFor(serviceID)
	if err != nil {
		return err
	}

	if err := authorizer.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", provider.Service(), err)
	}

	return r.writePlain("✓ %s tokens erased\n", provider.Service())
}
