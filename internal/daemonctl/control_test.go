package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"signage/internal/config"
	"signage/internal/daemon"
	"signage/internal/ipc"
	"signage/internal/logging"
	"signage/internal/testsupport"
)

// servedDaemon runs an unpaired daemon behind an IPC socket. Its Stop RPC
// closes the server the way the daemon process exits.
func servedDaemon(t *testing.T) (*Controller, <-chan struct{}) {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "device.yaml")
	if err := os.WriteFile(configFile, []byte("paired: false\n"), 0o644); err != nil {
		t.Fatalf("write device config: %v", err)
	}
	cfg := testsupport.NewConfig(t, testsupport.WithConfigFile(configFile))
	cfg.Sync.PollInterval = 3600
	store := testsupport.MustOpenStore(t, cfg)
	prefStore := testsupport.MustOpenPrefs(t, cfg)

	d, err := daemon.New(cfg, store, prefStore, logging.NewNop(), daemon.WithoutNetlink())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	socket := filepath.Join(testsupport.BaseDir(cfg), "ctl.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	gone := make(chan struct{})
	srv.OnStop(func() {
		go func() {
			srv.Close()
			close(gone)
		}()
	})
	srv.Serve()
	t.Cleanup(srv.Close)

	return &Controller{SocketPath: socket, Config: cfg, Poll: 10 * time.Millisecond}, gone
}

func TestControllerStartWaitsForFirstSync(t *testing.T) {
	controller, _ := servedDaemon(t)

	result, err := controller.Start(5 * time.Second)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Launched || result.AlreadyRunning {
		t.Fatalf("expected services started in place, got %+v", result)
	}
	if !result.Ready {
		t.Fatalf("expected ready after first sync, got %+v", result)
	}
	if result.DeviceID != "test-device" || result.SyncOutcome != "not_paired" {
		t.Fatalf("unexpected readiness %+v", result)
	}
	if result.DeviceState != "unpaired_online" {
		t.Fatalf("unexpected device state %q", result.DeviceState)
	}

	again, err := controller.Start(time.Second)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !again.AlreadyRunning || !again.Ready {
		t.Fatalf("expected already running and ready, got %+v", again)
	}
}

func TestControllerStopWaitsForSocket(t *testing.T) {
	controller, gone := servedDaemon(t)
	if _, err := controller.Start(5 * time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := controller.Stop(2 * time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !result.StopAcknowledged || result.ForcedKill {
		t.Fatalf("expected graceful stop, got %+v", result)
	}
	select {
	case <-gone:
	case <-time.After(time.Second):
		t.Fatal("expected server closed by stop")
	}
	running, _, err := controller.Running()
	if err != nil || running {
		t.Fatalf("expected daemon gone, running=%v err=%v", running, err)
	}
	if _, err := controller.Stop(time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestControllerStartWithoutExecutable(t *testing.T) {
	controller := &Controller{SocketPath: filepath.Join(t.TempDir(), "absent.sock")}
	result, err := controller.Start(100 * time.Millisecond)
	if err == nil {
		t.Fatal("expected launch failure without an executable")
	}
	if result.Launched {
		t.Fatal("expected nothing launched")
	}
}

func TestLaunchArgs(t *testing.T) {
	got := LaunchOptions{SocketPath: " /run/s.sock ", LogLevel: "debug"}.args()
	want := []string{"daemon", "--socket", "/run/s.sock", "--log-level", "debug"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestRuntimePathsPrefersStatusLock(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/var/lib/signage"

	pid, lock := RuntimePaths("", &cfg)
	if pid != "/var/lib/signage/signaged.pid" || lock != "/var/lib/signage/signaged.lock" {
		t.Fatalf("unexpected config paths pid=%q lock=%q", pid, lock)
	}

	pid, lock = RuntimePaths("/srv/other/signaged.lock", &cfg)
	if pid != "/srv/other/signaged.pid" || lock != "/srv/other/signaged.lock" {
		t.Fatalf("unexpected status-derived paths pid=%q lock=%q", pid, lock)
	}

	pid, lock = RuntimePaths("", nil)
	if pid != "" || lock != "" {
		t.Fatalf("expected empty paths without config, got pid=%q lock=%q", pid, lock)
	}
}

func TestForceKillProcessRefusesSelf(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "signaged.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}

func TestForceKillProcessWithoutPID(t *testing.T) {
	dir := t.TempDir()
	if _, err := ForceKillProcess(filepath.Join(dir, "missing.pid"), "", 0); err == nil {
		t.Fatal("expected error when pid cannot be determined")
	}
	garbage := filepath.Join(dir, "garbage.pid")
	if err := os.WriteFile(garbage, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ForceKillProcess(garbage, "", 0); err == nil {
		t.Fatal("expected error for a malformed pid file")
	}
}
