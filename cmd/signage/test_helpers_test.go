package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"signage/internal/config"
	"signage/internal/daemon"
	"signage/internal/ipc"
	"signage/internal/logging"
	"signage/internal/testsupport"
)

const deviceDocument = `
paired: true
screen: {id: s1, name: Lobby, resolution: {width: 1920, height: 1080}}
layout:
  design: {width: 1920, height: 1080}
  regions:
    - {id: main, x: 0, y: 0, w: 1920, h: 1080, playlistId: P1}
playlists:
  - id: P1
    name: Lobby Loop
    items:
      - asset: {id: a1, url: "file://%[1]s/a1.png", title: Welcome, mediaType: image/png, bytes: 64}
        durationSec: 1
`

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	media := filepath.Join(base, "media")
	testsupport.WriteFile(t, filepath.Join(media, "a1.png"), 64)
	documentPath := filepath.Join(base, "device.yaml")
	if err := os.WriteFile(documentPath, []byte(fmt.Sprintf(deviceDocument, media)), 0o644); err != nil {
		t.Fatalf("write device document: %v", err)
	}

	cfg := testsupport.NewConfig(t, testsupport.WithConfigFile(documentPath))
	cfg.Sync.PollInterval = 3600
	cfg.Paths.SocketPath = filepath.Join(base, "cli.sock")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	prefStore := testsupport.MustOpenPrefs(t, cfg)
	logger := logging.NewNop()

	d, err := daemon.New(cfg, store, prefStore, logger, daemon.WithoutNetlink())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		server:     srv,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
