package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"signage/internal/daemon"
	"signage/internal/ipc"
	"signage/internal/logging"
	"signage/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "device.yaml")
	if err := os.WriteFile(configFile, []byte("paired: false\n"), 0o644); err != nil {
		t.Fatalf("write device config: %v", err)
	}
	cfg := testsupport.NewConfig(t, testsupport.WithConfigFile(configFile))
	cfg.Sync.PollInterval = 3600
	store := testsupport.MustOpenStore(t, cfg)
	prefStore := testsupport.MustOpenPrefs(t, cfg)
	logger := logging.NewNop()

	d, err := daemon.New(cfg, store, prefStore, logger, daemon.WithoutNetlink())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(testsupport.BaseDir(cfg), "signage.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	stopped := make(chan struct{})
	srv.OnStop(func() { close(stopped) })
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	again, err := client.Start()
	if err != nil {
		t.Fatalf("second Start RPC failed: %v", err)
	}
	if again.Started {
		t.Fatal("expected second start to be rejected")
	}

	syncResp, err := client.SyncNow()
	if err != nil {
		t.Fatalf("SyncNow RPC failed: %v", err)
	}
	if syncResp.Summary.Outcome != "not_paired" {
		t.Fatalf("expected not_paired outcome, got %q (%s)", syncResp.Summary.Outcome, syncResp.Summary.Error)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.DeviceID != "test-device" {
		t.Fatalf("unexpected device id %q", status.DeviceID)
	}
	if status.State != "unpaired_online" {
		t.Fatalf("expected unpaired_online, got %q", status.State)
	}
	if status.Paired || status.Playable {
		t.Fatalf("unpaired device reported paired=%v playable=%v", status.Paired, status.Playable)
	}
	if status.LastSync == nil || status.LastSync.Outcome != "not_paired" {
		t.Fatalf("expected last sync summary, got %#v", status.LastSync)
	}
	if status.CatalogPath != cfg.CatalogPath() {
		t.Fatalf("unexpected catalog path %q", status.CatalogPath)
	}

	pushResp, err := client.Push("content_update")
	if err != nil {
		t.Fatalf("Push RPC failed: %v", err)
	}
	if !pushResp.Accepted {
		t.Fatal("expected content_update push to be accepted")
	}
	if _, err := client.Push("reboot"); err == nil {
		t.Fatal("expected unknown push message to fail")
	}

	health, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth RPC failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("expected readable catalog, got %#v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("unexpected missing tables: %v", health.MissingTables)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected test notification to be skipped without a topic")
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected Stopped=true")
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("expected stop hook to run")
	}

	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status after stop failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to report stopped")
	}
}
