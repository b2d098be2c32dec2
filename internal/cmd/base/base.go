// Package base carries the pieces shared by all CLI commands.
package base

import (
	"bytes"
	"flag"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command is embedded by every CLI command.
type Command struct {
	// Log is the root logger.
	Log hclog.Logger

	// UI is used for all terminal output.
	UI cli.Ui
}

// FlagSet wraps the standard flag set with help rendering.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet creates a flag set that reports errors through return
// values instead of printing or exiting.
func NewFlagSet(name string) *FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	return &FlagSet{FlagSet: fs}
}

// Help renders the flag defaults as a help string.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	f.SetOutput(&buf)
	f.PrintDefaults()
	f.SetOutput(io.Discard)
	return buf.String()
}
