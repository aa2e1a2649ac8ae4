package ipc

import (
	"signage/internal/daemon"
)

func statusResponse(status daemon.Status) StatusResponse {
	resp := StatusResponse{
		Running:        status.Running,
		PID:            status.PID,
		DeviceID:       status.DeviceID,
		Generation:     status.Generation,
		Paired:         status.Inputs.Paired,
		Online:         status.Online,
		OnlineKnown:    status.OnlineKnown,
		LastProbe:      status.LastProbe,
		RequiredAssets: status.Inputs.Completeness.Required,
		LocalAssets:    status.Inputs.Completeness.Local,
		VideoSessions:  status.VideoSessions,
		VideoCapacity:  status.VideoCapacity,
		CatalogPath:    status.CatalogPath,
		AssetsDir:      status.AssetsDir,
		LockPath:       status.LockFilePath,
		Catalog: CatalogStats{
			Devices:         status.Catalog.Devices,
			Playlists:       status.Catalog.Playlists,
			Items:           status.Catalog.Items,
			Assets:          status.Catalog.Assets,
			LocalAssets:     status.Catalog.LocalAssets,
			DeclaredBytes:   status.Catalog.DeclaredBytes,
			DownloadedBytes: status.Catalog.DownloadedBytes,
			PlayEvents:      status.Catalog.PlayEvents,
		},
	}
	if status.StateKnown {
		resp.State = status.State.String()
		resp.StateMessage = status.State.Coarse()
		resp.Playable = status.State.Playable()
	} else {
		resp.State = "unknown"
		resp.StateMessage = "Starting."
	}
	if status.LastSync != nil {
		resp.LastSync = &SyncSummary{
			Outcome:          status.LastSync.Outcome,
			Error:            status.LastSync.Error,
			At:               status.LastSync.At,
			DurationMillis:   status.LastSync.Duration.Milliseconds(),
			Fingerprint:      status.LastSync.Fingerprint,
			Playlists:        status.LastSync.Playlists,
			Items:            status.LastSync.Items,
			RemovedPlaylists: status.LastSync.RemovedPlaylists,
			RemovedAssets:    status.LastSync.RemovedAssets,
		}
	}

	resp.Regions = make([]RegionStatus, 0, len(status.Regions))
	for _, region := range status.Regions {
		resp.Regions = append(resp.Regions, RegionStatus{
			RegionID:       region.RegionID,
			PlaylistID:     region.PlaylistID,
			State:          region.State.String(),
			Generation:     region.Generation,
			CurrentAssetID: region.CurrentAssetID,
			VideoPermit:    region.VideoPermit,
		})
	}

	resp.Downloads = make([]DownloadStatus, 0, len(status.Downloads))
	for _, progress := range status.Downloads {
		resp.Downloads = append(resp.Downloads, DownloadStatus{
			PlaylistID:      progress.PlaylistID,
			CurrentAssetID:  progress.CurrentAssetID,
			Finished:        progress.FinishedCount,
			Total:           progress.TotalCount,
			Failed:          progress.Failed,
			BytesDownloaded: progress.BytesDownloaded,
			TotalBytes:      progress.TotalBytes,
			RateBytesPerSec: progress.RateBytesPerSec,
			ETASeconds:      progress.ETASeconds,
			Percent:         progress.Percent,
			Done:            progress.Done,
		})
	}

	for _, run := range status.PlayRuns {
		resp.PlayRuns = append(resp.PlayRuns, PlayRun{
			RunID:      run.ID,
			RegionID:   run.RegionID,
			PlaylistID: run.PlaylistID,
			AssetID:    run.AssetID,
			MediaType:  run.MediaType,
			StartedAt:  run.StartedAt,
			LastTick:   run.LastTick,
		})
	}

	for _, problem := range status.Problems {
		resp.Problems = append(resp.Problems, Problem(problem))
	}
	return resp
}
