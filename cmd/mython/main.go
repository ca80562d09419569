// Command mython serves the personal finance tracker and offers a few
// one-shot maintenance commands over the same ledger.
package main

import (
	"github.com/alecthomas/kong"

	"mython/internal/cli"
	"mython/internal/config"
	"mython/internal/log"
)

// globals holds options shared by every command.
type globals struct {
	EnvFile []string `name:"env-file" help:"Dotenv files to load before reading the environment." default:".env"`
}

// setup loads dotenv files, validates the configuration and installs the
// logger every command uses.
func (g *globals) setup() (*config.Config, *log.Logger, error) {
	cli.LoadEnvFile(g.EnvFile...)
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, cli.SetupLogger(cfg), nil
}

var app struct {
	Globals globals `embed:""`

	Serve     serveCmd     `cmd:"" default:"1" help:"Run the HTTP API (default)."`
	Export    exportCmd    `cmd:"" help:"Write the current ledger to one or more export targets."`
	List      listCmd      `cmd:"" help:"Print the ledger in list order."`
	Dashboard dashboardCmd `cmd:"" help:"Print the dashboard derivations for a month as JSON."`

	SheetsAuth sheetsAuthCmd `cmd:"" name:"sheets-auth" help:"Authorize the sheets export target with a Google user account."`
}

func main() {
	ctx := kong.Parse(&app,
		kong.Name("mython"),
		kong.Description("Personal finance tracker."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&app.Globals)
	ctx.FatalIfErrorf(err)
}
