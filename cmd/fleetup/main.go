package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/andrej220/fleetup/internal/lg"
	"github.com/andrej220/fleetup/pkg/config"
)

const serviceName = "fleetup"

// EnvPassphrase supplies the vault passphrase non-interactively.
const EnvPassphrase = "FLEETUP_PASSPHRASE"

var (
	configPath = flag.String("config", "", "path to config file (default: <data dir>/config.yaml)")
	debug      = flag.Bool("debug", false, "enable debug logging")
	logFormat  = flag.String("log-format", "", "log format: json or console")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [command flags]

Commands:
  run           apply an operation to a set of hosts
  hosts         list registered hosts
  host-add      add or update a host
  host-rm       remove a host
  set-password  store an encrypted SSH password for a host

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := lg.New(&lg.Config{
		ServiceName: serviceName,
		Debug:       *debug || cfg.Log.Debug,
		Format:      pickFormat(cfg),
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = lg.Attach(ctx, logger)

	args := flag.Args()[1:]
	switch cmd := flag.Arg(0); cmd {
	case "run":
		err = cmdRun(ctx, cfg, logger, args)
	case "hosts":
		err = cmdHosts(cfg, args)
	case "host-add":
		err = cmdHostAdd(cfg, args)
	case "host-rm":
		err = cmdHostRemove(cfg, args)
	case "set-password":
		err = cmdSetPassword(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", lg.Err(err))
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults (and
// persisting them) on first run.
func loadConfig() (config.AppConfig, error) {
	cfg := config.Default()
	path := *configPath
	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}
	store := config.NewStore(path)
	if err := store.Load(&cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
		if err := store.Save(cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func pickFormat(cfg config.AppConfig) string {
	if *logFormat != "" {
		return *logFormat
	}
	if cfg.Log.Format != "" {
		return cfg.Log.Format
	}
	return "console"
}
