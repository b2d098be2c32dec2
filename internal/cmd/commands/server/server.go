// Package server implements the command that runs the HTTP server from
// a configuration file.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp-forge/quill/internal/api"
	"github.com/hashicorp-forge/quill/internal/cmd/base"
	"github.com/hashicorp-forge/quill/internal/config"
	"github.com/hashicorp-forge/quill/internal/db"
	intsrv "github.com/hashicorp-forge/quill/internal/server"
	"github.com/hashicorp-forge/quill/pkg/document"
	"github.com/hashicorp-forge/quill/pkg/keygen"
	"github.com/hashicorp-forge/quill/pkg/render"
	"github.com/hashicorp-forge/quill/pkg/storage"
	"github.com/hashicorp-forge/quill/pkg/token"
	"github.com/hashicorp-forge/quill/pkg/webhook"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Run the server"
}

func (c *Command) Help() string {
	return `Usage: quill server -config=<path>

  Run the server using the given configuration file.

` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet("server")
	f.StringVar(&c.flagConfig, "config", "quill.hcl",
		"Path to the configuration file.")
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := config.NewConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	return c.RunServer(cfg)
}

// RunServer builds the full service stack from cfg and serves until
// interrupted. Split out of Run so the zero-config serve command can
// reuse it with a generated configuration.
func (c *Command) RunServer(cfg *config.Config) int {
	log := c.Log.Named("server")

	secret := cfg.Tokens.Secret
	if secret == "" {
		secret = randomSecret()
		c.UI.Warn("no token secret configured; using a random one, tokens will not survive a restart")
	}

	gormDB, err := db.NewDB(cfg.Database)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening database: %v", err))
		return 1
	}

	tokens, err := token.NewService(secret, cfg.Tokens.DefaultTTLDuration())
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating token service: %v", err))
		return 1
	}
	keys, err := keygen.New(cfg.Documents.KeyLength)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating key generator: %v", err))
		return 1
	}

	store := storage.New(gormDB, log)
	stopSweeper := store.StartSweeper(cfg.Documents.SweepIntervalDuration())
	defer stopSweeper()

	hooks := webhook.NewDispatcher(webhook.Config{
		Timeout:        cfg.Webhooks.TimeoutDuration(),
		MaxRetries:     uint64(cfg.Webhooks.MaxRetries),
		InitialBackoff: cfg.Webhooks.BackoffDuration(),
	}, log)
	defer hooks.Close()

	var renderer render.Renderer = render.NewHighlighter(cfg.Render.Style, cfg.Render.MaxHighlightSize)
	if cfg.Render.Disabled {
		renderer = render.Plain{}
	}

	srv := intsrv.Server{
		Config: cfg,
		DB:     gormDB,
		Documents: document.NewService(store, tokens, keys, hooks, log, document.Config{
			MaxKeyAttempts: cfg.Documents.MaxKeyAttempts,
			PublicRead:     cfg.Documents.PublicReadEnabled(),
		}),
		Renderer: renderer,
		Logger:   log,
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.New(srv),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	c.UI.Info(fmt.Sprintf("server listening on %s", cfg.Server.Addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		c.UI.Error(fmt.Sprintf("server error: %v", err))
		return 1
	case sig := <-sigCh:
		c.UI.Info(fmt.Sprintf("received %s, shutting down", sig))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		c.UI.Error(fmt.Sprintf("error during shutdown: %v", err))
		return 1
	}
	return 0
}

func randomSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
