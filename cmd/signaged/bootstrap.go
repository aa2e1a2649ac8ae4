package main

import (
	"flag"
	"io"
	"os"
	"strings"

	"signage/internal/daemonrun"
)

const configEnv = "SIGNAGE_CONFIG"

type bootstrapOptions struct {
	configPath string
	socketPath string
	run        daemonrun.Options
}

// parseArgs reads flags, falling back to SIGNAGE_CONFIG for the config path.
func parseArgs(args []string, stderr io.Writer) (bootstrapOptions, error) {
	var opts bootstrapOptions
	fs := flag.NewFlagSet("signaged", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Configuration file path (default $"+configEnv+" or ~/.config/signage/config.toml)")
	fs.StringVar(&opts.socketPath, "socket", "", "Override the control socket path")
	fs.StringVar(&opts.run.LogLevel, "log-level", "", "Override the configured log level")
	fs.BoolVar(&opts.run.Development, "dev", false, "Include source locations in log output")
	if err := fs.Parse(args); err != nil {
		return bootstrapOptions{}, err
	}
	if strings.TrimSpace(opts.configPath) == "" {
		opts.configPath = strings.TrimSpace(os.Getenv(configEnv))
	}
	return opts, nil
}
