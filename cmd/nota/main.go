package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// CLI is the top-level command structure for nota.
type CLI struct {
	Debug  bool   `env:"NOTA_DEBUG" help:"Enable debug logging."`
	Config string `type:"path" help:"Path to the config file (default ~/.config/nota/config.yaml)."`

	Serve ServeCmd `cmd:"" help:"Run the HTTP API server."`
	MCP   MCPCmd   `cmd:"" name:"mcp" help:"Run the MCP server on stdio."`
}

func main() {
	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name("nota"),
		kong.Description("A personal knowledge base with agent-addressable documents."),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			os.Exit(code)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nota: %v\n", err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cfg, err := loadConfig(cli.Config)
	parser.FatalIfErrorf(err)

	setupLogger(cli.Debug, cfg.LogLevel)

	ctx.Bind(cfg)

	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

func setupLogger(debug bool, level string) {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if debug {
		lvl = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
}
