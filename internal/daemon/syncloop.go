package daemon

import (
	"context"
	"errors"
	"time"

	"signage/internal/contentsync"
	"signage/internal/devicestate"
	"signage/internal/logging"
	"signage/internal/notifications"
	"signage/internal/push"
	"signage/internal/remote"
)

const notifyTimeout = 15 * time.Second

// loop drives syncs from startup, the poll timer and push events.
func (d *Daemon) loop(ctx context.Context, events <-chan push.Event, unsubscribe func()) {
	defer d.wg.Done()
	defer unsubscribe()

	d.sync(ctx, "startup")

	ticker := time.NewTicker(d.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sync(ctx, "timer")
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case push.KindContentChanged:
				d.sync(ctx, ev.Source)
			case push.KindConnectivity:
				d.evaluate(ctx, "connectivity")
				if ev.Online {
					d.sync(ctx, "reconnect")
				}
			}
		}
	}
}

// sync runs one pass, or joins the pass already running.
func (d *Daemon) sync(ctx context.Context, reason string) contentsync.Result {
	value, _, _ := d.syncGroup.Do("sync", func() (any, error) {
		return d.syncOnce(ctx, reason), nil
	})
	return value.(contentsync.Result)
}

func (d *Daemon) syncOnce(ctx context.Context, reason string) contentsync.Result {
	deviceID := d.DeviceID()
	result := d.engine.Sync(ctx, deviceID)

	d.mu.Lock()
	wasPaired := d.stateSet && d.inputs.Paired
	d.lastSync = &result
	d.lastAt = time.Now()
	d.mu.Unlock()

	d.logger.Debug("sync finished",
		logging.String("reason", reason),
		logging.String("outcome", result.Outcome.String()),
		logging.Duration("duration", result.Duration),
	)

	switch result.Outcome {
	case contentsync.OutcomeApplied:
		d.rebuild(result.Layout, reason)
	case contentsync.OutcomeNoChange:
		d.resumeDownloads(ctx)
	case contentsync.OutcomeNotPaired:
		d.clearGeneration()
		if wasPaired {
			d.notify(ctx, notifications.EventPairingLost, notifications.Payload{"device": deviceID})
		}
	case contentsync.OutcomeError:
		if errors.Is(result.Err, remote.ErrNetwork) {
			d.prober.Trigger()
		}
		d.notify(ctx, notifications.EventSyncFailed, notifications.Payload{
			"device": deviceID,
			"error":  result.Err,
		})
	}

	d.evaluate(ctx, "sync")
	return result
}

// resumeDownloads retries missing assets of the running generation, or
// restores the cached layout when nothing is running yet.
func (d *Daemon) resumeDownloads(ctx context.Context) {
	d.mu.Lock()
	g := d.gen
	d.mu.Unlock()
	if g == nil {
		d.resumeCached(ctx)
		return
	}
	d.startDownloads(g)
}

// online prefers the prober's view; before the first probe a network failure
// of the last sync counts as offline.
func (d *Daemon) online() (online bool, known bool) {
	if online, known := d.prober.Online(); known {
		return online, true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastSync != nil && errors.Is(d.lastSync.Err, remote.ErrNetwork) {
		return false, false
	}
	return true, false
}

// evaluate recomputes the device state and reports transitions.
func (d *Daemon) evaluate(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	online, _ := d.online()
	applied, _ := d.prefs.Layout()

	state, inputs, err := devicestate.Assess(ctx, d.store, applied, online)
	if err != nil {
		logging.WarnWithContext(d.logger, "device state evaluation failed", "device_state_failed",
			logging.Error(err),
			logging.String("trigger", trigger),
			logging.Impact("status may show a stale device state"),
		)
		return
	}

	d.mu.Lock()
	previous, hadPrevious := d.state, d.stateSet
	d.state = state
	d.inputs = inputs
	d.stateSet = true
	deviceID := d.deviceID
	d.mu.Unlock()

	if hadPrevious && previous == state {
		return
	}

	from := "none"
	if hadPrevious {
		from = previous.String()
	}
	d.logger.Info("device state changed",
		logging.String("from", from),
		logging.String("to", state.String()),
		logging.String("trigger", trigger),
		logging.Bool("online", online),
		logging.Int("required_assets", inputs.Completeness.Required),
		logging.Int("local_assets", inputs.Completeness.Local),
		logging.EventType("device_state_changed"),
	)
	if hadPrevious {
		d.notify(ctx, notifications.EventStateChanged, notifications.Payload{
			"device":   deviceID,
			"from":     from,
			"to":       state.String(),
			"playable": state.Playable(),
		})
	}
}

func (d *Daemon) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := d.notifier.Publish(notifyCtx, event, payload); err != nil {
		logging.WarnWithContext(d.logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String("event", string(event)),
			logging.ErrorHint("check notifications.ntfy_topic"),
			logging.Impact("operators were not notified"),
		)
	}
}
