package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"signage/internal/analytics"
	"signage/internal/assetstore"
	"signage/internal/catalog"
	"signage/internal/config"
	"signage/internal/contentsync"
	"signage/internal/devicestate"
	"signage/internal/download"
	"signage/internal/logging"
	"signage/internal/notifications"
	"signage/internal/playback"
	"signage/internal/prefs"
	"signage/internal/push"
	"signage/internal/remote"
)

// Daemon owns every long-running service of the device. It holds no process
// globals; callers construct one, Start it, and Stop it.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *catalog.Store
	prefs  *prefs.Store

	source    remote.Source
	assets    *assetstore.Store
	engine    *contentsync.Engine
	pipeline  *download.Pipeline
	admission *playback.Admission
	scheduler *playback.Scheduler
	recorder  *analytics.Recorder
	hub       *push.Hub
	prober    *push.Prober
	netlink   *push.NetlinkMonitor
	notifier  notifications.Service
	problems  *logging.RecentProblems

	lockPath string
	lock     *flock.Flock

	syncGroup singleflight.Group

	running   atomic.Bool
	lifecycle sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	base     context.Context
	deviceID string
	genSeq   uint64
	gen      *generation
	lastSync *contentsync.Result
	lastAt   time.Time
	state    devicestate.State
	inputs   devicestate.Inputs
	stateSet bool
}

// Option customizes a Daemon.
type Option func(*options)

type options struct {
	source   remote.Source
	factory  playback.RendererFactory
	notifier notifications.Service
	problems *logging.RecentProblems
	netlink  bool
}

// WithSource replaces the configured remote source.
func WithSource(source remote.Source) Option {
	return func(o *options) { o.source = source }
}

// WithRendererFactory sets how region renderers are created. The default logs
// what would be drawn.
func WithRendererFactory(factory playback.RendererFactory) Option {
	return func(o *options) { o.factory = factory }
}

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *options) { o.notifier = notifier }
}

// WithRecentProblems exposes recently logged warnings in Status.
func WithRecentProblems(problems *logging.RecentProblems) Option {
	return func(o *options) { o.problems = problems }
}

// WithoutNetlink disables the udev network monitor.
func WithoutNetlink() Option {
	return func(o *options) { o.netlink = false }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, prefStore *prefs.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || prefStore == nil {
		return nil, errors.New("daemon requires config, catalog store, and prefs store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	o := options{netlink: true}
	for _, opt := range opts {
		opt(&o)
	}

	source := o.source
	if source == nil {
		var err error
		source, err = remote.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("build remote source: %w", err)
		}
	}
	factory := o.factory
	if factory == nil {
		factory = playback.NewLogRendererFactory(logger)
	}
	notifier := o.notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	assets := assetstore.New(cfg.Paths.AssetsDir, logger)
	admission := playback.NewAdmission(cfg.Playback.MaxVideoSessions)

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		prefs:     prefStore,
		source:    source,
		assets:    assets,
		engine:    contentsync.NewEngine(source, store, assets, prefStore, logger, contentsync.WithDefaultDuration(cfg.Playback.DefaultDurationSec)),
		pipeline:  download.NewFromConfig(cfg, store, assets, logger),
		admission: admission,
		hub:       push.NewHub(logger),
		notifier:  notifier,
		problems:  o.problems,
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}

	var observer playback.Observer
	if cfg.Analytics.Enabled {
		d.recorder = analytics.New(store, logger, cfg.AnalyticsTick())
		observer = d.recorder
	}
	d.scheduler = playback.New(admission, store, factory, observer, logger, playback.OptionsFromConfig(cfg))

	probeURL := cfg.Server.BaseURL
	if cfg.Server.ConfigFile != "" {
		probeURL = ""
	}
	d.prober = push.NewProber(probeURL, cfg.ProbeInterval(), cfg.RequestTimeout(), d.hub, logger)
	if o.netlink {
		d.netlink = push.NewNetlinkMonitor(logger, d.prober.Trigger)
	}
	return d, nil
}

// Start acquires the daemon lock and launches every background service.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another signage daemon instance is already running")
	}

	deviceID, err := d.prefs.EnsureDeviceID(d.cfg.Server.DeviceID, uuid.NewString)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("resolve device id: %w", err)
	}
	d.mu.Lock()
	d.deviceID = deviceID
	d.mu.Unlock()

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Lock()
	d.base = d.ctx
	d.mu.Unlock()

	d.hub.Start(d.ctx)
	events, unsubscribe := d.hub.Subscribe()
	d.prober.Start(d.ctx)
	if err := d.netlink.Start(d.ctx); err != nil {
		d.logger.Warn("netlink monitor unavailable", logging.Error(err))
	}
	if d.recorder != nil {
		d.pruneAnalytics(d.ctx)
		d.recorder.Start(d.ctx)
	}

	d.resumeCached(d.ctx)

	d.wg.Add(1)
	go d.loop(d.ctx, events, unsubscribe)

	d.running.Store(true)
	d.logger.Info("signage daemon started",
		logging.String("lock", d.lockPath),
		logging.DeviceID(deviceID),
		logging.EventType("daemon_started"),
	)
	return nil
}

// Stop halts background work and releases the daemon lock.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Lock()
	d.base = nil
	d.mu.Unlock()
	d.clearGeneration()
	d.netlink.Stop()
	d.prober.Stop()
	d.hub.Stop()
	if d.recorder != nil {
		d.recorder.Stop()
	}
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.ErrorHint("remove the lock file if the next start fails"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("signage daemon stopped", logging.EventType("daemon_stopped"))
}

// Close stops the daemon. The catalog and prefs stores belong to the caller.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// DeviceID returns the id used for server requests, empty before Start.
func (d *Daemon) DeviceID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deviceID
}

// SyncNow runs a sync pass, joining one already in flight.
func (d *Daemon) SyncNow(ctx context.Context) (contentsync.Result, error) {
	if !d.running.Load() {
		return contentsync.Result{}, errors.New("daemon not running")
	}
	return d.sync(ctx, "manual"), nil
}

// Push feeds a server push message name into the hub. Unknown names are
// reported with false.
func (d *Daemon) Push(message string) bool {
	ev, ok := push.ParseMessage(message)
	if !ok {
		return false
	}
	return d.hub.Publish(ev)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// ErrAnalyticsDisabled is returned by AttachAttributes when analytics.enabled is off.
var ErrAnalyticsDisabled = errors.New("analytics disabled")

// AttachAttributes hands an attribute document from an external producer
// to an open play run; later samples of the run carry it.
func (d *Daemon) AttachAttributes(runID string, attrs json.RawMessage) error {
	if d.recorder == nil {
		return ErrAnalyticsDisabled
	}
	if !json.Valid(attrs) {
		return fmt.Errorf("attributes for run %s are not valid JSON", runID)
	}
	return d.recorder.Attach(runID, attrs)
}

// DatabaseHealth returns catalog diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (catalog.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

func (d *Daemon) pruneAnalytics(ctx context.Context) {
	days := d.cfg.Analytics.RetentionDays
	if days <= 0 {
		return
	}
	removed, err := d.store.PrunePlayEvents(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to prune play events", "analytics_prune_failed",
			logging.Error(err),
			logging.Impact("old play events remain in the catalog"),
		)
		return
	}
	if removed > 0 {
		d.logger.Info("pruned play events",
			logging.Int64("removed", removed),
			logging.Int("retention_days", days),
		)
	}
}
