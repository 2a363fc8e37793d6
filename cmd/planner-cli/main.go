package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/daily-planner/planner/internal/cli"
	"github.com/daily-planner/planner/internal/client"
	"github.com/daily-planner/planner/internal/platform/config"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to $PLANNER_CONFIG)")
	apiBase := flag.String("api", "", "planner web base URL (overrides client.api_base)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *apiBase != "" {
		cfg.Client.APIBase = *apiBase
	}

	store, err := client.OpenKeyring(expandHome(cfg.Client.CredentialsDir), cfg.Client.FilePassword)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	api := client.New(cfg.Client.APIBase, cfg.Client.Timeout)
	// Rotated tokens must outlive this process.
	api.OnSession = func(s client.Session) {
		if err := store.Save(s); err != nil {
			fmt.Fprintln(os.Stderr, "warning:", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runner := &cli.Runner{
		API:      api,
		Sessions: store,
		In:       os.Stdin,
		Out:      os.Stdout,
		Err:      os.Stderr,
	}
	code := runner.Run(ctx, flag.Args())
	stop()
	os.Exit(code)
}

func expandHome(dir string) string {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~"))
}
