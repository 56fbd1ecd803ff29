package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/drivecopy/internal/jobs"
	"github.com/desertthunder/drivecopy/internal/repositories"
	"github.com/desertthunder/drivecopy/internal/server"
	"github.com/desertthunder/drivecopy/internal/services"
	"github.com/desertthunder/drivecopy/internal/shared"
	"github.com/desertthunder/drivecopy/internal/tasks"
	"github.com/urfave/cli/v3"
)

// apiServer bundles the pieces the serve command wires together.
type apiServer struct {
	handler  http.Handler
	registry *jobs.Registry
	db       *sql.DB
}

// Close cancels in-flight jobs, waits for them to be recorded and closes the history database.
func (a *apiServer) Close() {
	a.registry.Close()
	if a.db != nil {
		a.db.Close()
	}
}

// newAPIServer builds the registry, optional history recorder and router for backend.
func (r *Runner) newAPIServer(config *shared.Config, backend services.Backend, history bool) (*apiServer, error) {
	a := &apiServer{}

	var recorder jobs.Recorder
	if history {
		db, err := shared.OpenDatabase(config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		a.db = db
		recorder = repositories.NewJobRepository(db)
	}

	logger := shared.WithLogger(r.logger, "component", "server")
	engine := tasks.NewCopyEngine(backend, shared.WithLogger(r.logger, "component", "engine"))
	a.registry = jobs.NewRegistry(engine, backend, jobs.Options{
		DefaultConcurrency: config.Copy.Concurrency,
		CallTimeout:        config.Copy.CallTimeout(),
		RateLimit:          config.Copy.RateLimit,
		Recorder:           recorder,
		Logger:             shared.WithLogger(r.logger, "component", "registry"),
	})

	router := server.NewBasicRouter()
	router.Use(server.Recover(logger), server.Logging(logger))
	router.Handler(server.NewJobsHandler(a.registry, config.Copy.DisplayLimit, logger))
	a.handler = router

	return a, nil
}

// Serve runs the job API until the context is canceled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	backend := r.backend
	if backend == nil {
		drive, err := r.driveService(config)
		if err != nil {
			return err
		}
		if err := drive.LoadToken(context.Background()); err != nil {
			return err
		}
		backend = drive
	}

	api, err := r.newAPIServer(config, backend, !cmd.Bool("no-history"))
	if err != nil {
		return err
	}
	defer api.Close()

	if interval, maxAge := config.Copy.GCInterval(), config.Copy.GCMaxAge(); interval > 0 && maxAge > 0 {
		api.registry.StartGC(ctx, interval, maxAge)
	}

	host, port := config.Server.Host, config.Server.Port
	if cmd.IsSet("host") {
		host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{Handler: api.handler, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	r.logger.Info("server listening", "addr", listener.Addr().String(), "history", api.db != nil)
	r.writePlain("→ Listening on http://%s\n", listener.Addr())

	select {
	case <-ctx.Done():
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}
	return nil
}
