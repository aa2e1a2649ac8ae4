package daemon

import (
	"context"
	"os"
	"time"

	"signage/internal/analytics"
	"signage/internal/catalog"
	"signage/internal/devicestate"
	"signage/internal/download"
	"signage/internal/logging"
	"signage/internal/playback"
)

// SyncSummary describes the most recent sync pass.
type SyncSummary struct {
	Outcome          string
	Error            string
	At               time.Time
	Duration         time.Duration
	Fingerprint      string
	Playlists        int
	Items            int
	RemovedPlaylists int
	RemovedAssets    int
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	DeviceID      string
	Generation    uint64
	StateKnown    bool
	State         devicestate.State
	Inputs        devicestate.Inputs
	Online        bool
	OnlineKnown   bool
	LastProbe     time.Time
	LastSync      *SyncSummary
	Regions       []playback.RegionStatus
	PlayRuns      []analytics.Run
	Downloads     []download.Progress
	VideoSessions int
	VideoCapacity int
	Catalog       catalog.Stats
	CatalogPath   string
	AssetsDir     string
	LockFilePath  string
	Problems      []logging.Problem
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	online, known := d.online()
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Online:        online,
		OnlineKnown:   known,
		LastProbe:     d.prober.LastChecked(),
		Regions:       d.scheduler.States(),
		Downloads:     d.downloadSnapshot(),
		VideoSessions: d.admission.InUse(),
		VideoCapacity: d.admission.Capacity(),
		CatalogPath:   d.store.Path(),
		AssetsDir:     d.assets.Dir(),
		LockFilePath:  d.lockPath,
	}

	d.mu.Lock()
	status.DeviceID = d.deviceID
	if d.gen != nil {
		status.Generation = d.gen.id
	}
	status.StateKnown = d.stateSet
	status.State = d.state
	status.Inputs = d.inputs
	if d.lastSync != nil {
		summary := SyncSummary{
			Outcome:          d.lastSync.Outcome.String(),
			At:               d.lastAt,
			Duration:         d.lastSync.Duration,
			Fingerprint:      d.lastSync.Fingerprint,
			Playlists:        d.lastSync.Playlists,
			Items:            d.lastSync.Items,
			RemovedPlaylists: len(d.lastSync.RemovedPlaylists),
			RemovedAssets:    d.lastSync.RemovedAssets,
		}
		if d.lastSync.Err != nil {
			summary.Error = d.lastSync.Err.Error()
		}
		status.LastSync = &summary
	}
	d.mu.Unlock()

	if stats, err := d.store.Stats(ctx); err == nil {
		status.Catalog = stats
	} else {
		d.logger.Debug("catalog stats unavailable", logging.Error(err))
	}
	if d.recorder != nil {
		status.PlayRuns = d.recorder.Active()
	}
	if d.problems != nil {
		status.Problems = d.problems.Snapshot()
	}
	return status
}
