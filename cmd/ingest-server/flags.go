package main

import (
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// rtmpingest.Config so main.go can validate and map.
type cliConfig struct {
	listenAddr  string
	metricsAddr string
	configFile  string
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("ingest-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.listenAddr, "listen", "", "TCP listen address for RTMP publishers (overrides config file)")
	fs.StringVar(&cfg.metricsAddr, "metrics-listen", "", "HTTP listen address for /metrics (overrides config file)")
	fs.StringVar(&cfg.configFile, "config", "", "Path to an ingest-server config file (yaml/json/toml)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	return cfg, nil
}
