package push

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"signage/internal/logging"
)

// Kind identifies the type of a push event.
type Kind int

const (
	// KindContentChanged means the server has a new configuration for the device.
	KindContentChanged Kind = iota + 1
	// KindConnectivity reports a change in server reachability.
	KindConnectivity
)

func (k Kind) String() string {
	switch k {
	case KindContentChanged:
		return "content_changed"
	case KindConnectivity:
		return "connectivity"
	default:
		return "unknown"
	}
}

// Event is delivered to every Hub subscriber.
type Event struct {
	Kind   Kind
	Online bool
	Source string
	At     time.Time
}

// ContentChanged builds a content change event.
func ContentChanged(source string) Event {
	return Event{Kind: KindContentChanged, Source: source, At: time.Now()}
}

// Connectivity builds a connectivity event.
func Connectivity(online bool, source string) Event {
	return Event{Kind: KindConnectivity, Online: online, Source: source, At: time.Now()}
}

// ParseMessage maps a server push message name onto an event. Unknown names
// are reported with ok=false.
func ParseMessage(name string) (Event, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "content_update", "registered":
		return ContentChanged("push:" + strings.ToLower(strings.TrimSpace(name))), true
	default:
		return Event{}, false
	}
}

const subscriberBuffer = 16

// Hub fans published events out to subscribers. A slow subscriber loses
// events rather than blocking publishers.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	running bool
	epoch   uint64
}

// NewHub constructs an idle hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logging.NewComponentLogger(logger, "push-hub"),
		subs:   make(map[int]chan Event),
	}
}

// Start enables delivery. The hub stops on its own when ctx is cancelled and
// may be started again afterwards.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.epoch++
	epoch := h.epoch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.epoch == epoch {
			h.stopLocked()
		}
	}()
}

// Stop closes every current subscriber channel. Publishes are dropped until
// the next Start.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *Hub) stopLocked() {
	if !h.running {
		return
	}
	h.running = false
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Subscribe registers a listener. The returned function unsubscribes and is
// safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if existing, ok := h.subs[id]; ok {
				close(existing)
				delete(h.subs, id)
			}
		})
	}
}

// Publish delivers ev to every subscriber and reports whether the hub was
// running.
func (h *Hub) Publish(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return false
	}
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("dropping push event for slow subscriber",
				logging.Int("subscriber", id),
				logging.String("kind", ev.Kind.String()),
			)
		}
	}
	return true
}
