package push

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"signage/internal/logging"
)

const defaultProbeTimeout = 5 * time.Second

// Prober checks whether the content server is reachable and publishes a
// Connectivity event whenever the answer changes.
type Prober struct {
	url      string
	client   *http.Client
	interval time.Duration
	hub      *Hub
	logger   *slog.Logger

	mu      sync.Mutex
	known   bool
	online  bool
	checked time.Time
	trigger chan struct{}
	quit    chan struct{}
	running bool
}

// NewProber creates a prober for baseURL. An empty baseURL means the device
// reads its configuration locally and is always considered online.
func NewProber(baseURL string, interval, timeout time.Duration, hub *Hub, logger *slog.Logger) *Prober {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Prober{
		url:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:   &http.Client{Timeout: timeout},
		interval: interval,
		hub:      hub,
		logger:   logging.NewComponentLogger(logger, "prober"),
		trigger:  make(chan struct{}, 1),
	}
}

// Start runs the probe loop until Stop or ctx cancellation.
func (p *Prober) Start(ctx context.Context) {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.quit = make(chan struct{})
	p.running = true
	quit := p.quit
	p.mu.Unlock()

	go p.loop(ctx, quit)
}

// Stop halts the probe loop.
func (p *Prober) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.quit)
	p.quit = nil
	p.running = false
}

// Trigger requests an immediate re-check. Requests coalesce.
func (p *Prober) Trigger() {
	if p == nil {
		return
	}
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Online returns the last observed state and whether any probe has completed.
func (p *Prober) Online() (online bool, known bool) {
	if p == nil {
		return true, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online, p.known
}

// LastChecked returns when the last probe finished.
func (p *Prober) LastChecked() time.Time {
	if p == nil {
		return time.Time{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checked
}

func (p *Prober) loop(ctx context.Context, quit <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			p.Check(ctx)
		case <-p.trigger:
			p.Check(ctx)
		}
	}
}

// Check probes the server once, records the result and publishes on change.
func (p *Prober) Check(ctx context.Context) bool {
	online := p.probe(ctx)
	if ctx.Err() != nil {
		return online
	}

	p.mu.Lock()
	changed := !p.known || p.online != online
	p.known = true
	p.online = online
	p.checked = time.Now()
	p.mu.Unlock()

	if changed {
		p.logger.Info("connectivity changed",
			logging.Bool("online", online),
			logging.String("url", p.url),
			logging.EventType("connectivity_changed"),
		)
		if p.hub != nil {
			p.hub.Publish(Connectivity(online, "probe"))
		}
	}
	return online
}

func (p *Prober) probe(ctx context.Context) bool {
	if p.url == "" {
		return true
	}
	status, err := p.do(ctx, http.MethodHead)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = p.do(ctx, http.MethodGet)
	}
	if err != nil {
		p.logger.Debug("connectivity probe failed", logging.Error(err))
		return false
	}
	// Any answer below 500 proves the server is reachable.
	return status < http.StatusInternalServerError
}

func (p *Prober) do(ctx context.Context, method string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}
