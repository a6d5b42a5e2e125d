package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/parkwatch/internal"
	"github.com/starford/parkwatch/internal/codec"
	pkgconfig "github.com/starford/parkwatch/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// keygen writes a fresh age identity to the --out file (or stdout) and prints
// the matching recipient, for codec.kind: age.
func keygen(_ context.Context, cmd *cli.Command) error {
	a, identity, err := codec.GenerateAge()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if out := cmd.String("out"); out != "" {
		f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return fmt.Errorf("create identity file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := fmt.Fprintf(w, "# public key: %s\n%s\n", a.PublicKey(), identity); err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stderr, "Public key: %s\n", a.PublicKey())
	return err
}

func main() {
	cmd := &cli.Command{
		Name:   "parkwatch",
		Usage:  "Anonymous park issue reporting and voting over a key/value ledger",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve the issue tools over MCP stdio",
				Action: runMCP,
			},
			{
				Name:  "keygen",
				Usage: "Generate an age identity for the encrypted payload codec",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Write the identity to this file instead of stdout",
					},
				},
				Action: keygen,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
