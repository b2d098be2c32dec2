// Package serve implements the zero-config command: run the server
// against a sqlite database in a local directory, no config file needed.
package serve

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp-forge/quill/internal/cmd/base"
	"github.com/hashicorp-forge/quill/internal/cmd/commands/server"
	"github.com/hashicorp-forge/quill/internal/config"
)

type Command struct {
	*base.Command

	serverCmd *server.Command

	FlagBrowser bool
}

func (c *Command) Synopsis() string {
	return "Run the server with zero configuration"
}

func (c *Command) Help() string {
	return `Usage: quill serve [path]

  Run the server without a configuration file, storing documents in a
  sqlite database under the given directory (default: the current
  directory). The browser is opened once the server is reachable.

` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet("serve")
	f.BoolVar(&c.FlagBrowser, "browser", true,
		"Automatically open the browser.")
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	dir := "."
	if rest := f.Args(); len(rest) > 0 {
		dir = rest[0]
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error resolving data directory: %v", err))
		return 1
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		c.UI.Error(fmt.Sprintf("error creating data directory: %v", err))
		return 1
	}

	cfg := config.Default(filepath.Join(absDir, "quill.db"))
	if err := cfg.Validate(); err != nil {
		c.UI.Error(fmt.Sprintf("error building configuration: %v", err))
		return 1
	}

	c.UI.Info(fmt.Sprintf("storing documents in %s", cfg.Database.Path))

	if c.FlagBrowser {
		go openWhenReady(c.UI, cfg.Server.BaseURL)
	}

	c.serverCmd = &server.Command{Command: c.Command}
	return c.serverCmd.RunServer(cfg)
}
