package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"strings"

	"signage/internal/config"
	"signage/internal/daemonrun"
)

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, _, _, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if socket := strings.TrimSpace(opts.socketPath); socket != "" {
		cfg.Paths.SocketPath = socket
	}

	if err := daemonrun.Run(context.Background(), cfg, opts.run); err != nil {
		log.Fatalf("signaged: %v", err)
	}
}
