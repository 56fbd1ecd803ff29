package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/desertthunder/drivecopy/internal/server"
	"github.com/desertthunder/drivecopy/internal/services"
	"github.com/desertthunder/drivecopy/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// driveService builds a Drive client from the loaded config.
func (r *Runner) driveService(config *shared.Config) (*services.DriveService, error) {
	drive, err := services.NewDriveService(config.Credentials.Drive)
	if err != nil {
		return nil, fmt.Errorf("%w (set credentials.drive in %s)", err, r.configPath)
	}
	return drive, nil
}

// AuthLogin runs the OAuth2 authorization code flow in the browser and caches the Drive token.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	drive, err := r.driveService(config)
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, drive.Config(), drive)
	if err != nil {
		return err
	}

	drive.SetToken(context.Background(), token)
	if err := drive.SaveToken(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	r.logger.Info("drive authorization complete", "token", drive.TokenPath())
	r.writePlain("✓ Authorized with %s\n", drive.Name())
	r.writePlain("Token saved to %s\n", drive.TokenPath())
	return nil
}

// AuthStatus reports whether a cached token exists and when it expires.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	drive, err := r.driveService(config)
	if err != nil {
		return err
	}

	if err := drive.LoadToken(ctx); err != nil {
		r.writePlain("✗ Not authorized: %v\n", err)
		return nil
	}

	data, err := os.ReadFile(drive.TokenPath())
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("%w: invalid token file: %v", shared.ErrNotAuthenticated, err)
	}

	r.writePlain("✓ Authorized with %s\n", drive.Name())
	r.writePlain("Token: %s\n", drive.TokenPath())
	switch {
	case token.RefreshToken != "":
		r.writePlain("Refresh: available\n")
	case !token.Expiry.IsZero():
		r.writePlain("Expires: %s\n", token.Expiry.Format(time.RFC3339))
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server on the redirect URI's address
func (r *Runner) doOAuth(ctx context.Context, oauthConfig *oauth2.Config, oauthSrv services.OAuthService) (*oauth2.Token, error) {
	state := shared.GenerateID()

	redirect, err := url.Parse(oauthConfig.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, oauthConfig.RedirectURL)
	}

	authURL := oauthSrv.AuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthConfig, state)
	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger))
	router.Handler(oauthHandler)

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("starting OAuth callback server", "provider", oauthSrv.Name(), "addr", redirect.Host)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	r.writePlain("→ Opening browser for %s authorization...\n", oauthSrv.Name())
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", authTimeout)

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, authTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}
