package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"signage/internal/ipc"
)

func renderStatus(out io.Writer, status *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Device", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range deviceLines(status, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Sync", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, syncLine(status.LastSync, colorize))
	fmt.Fprintln(out, renderStatusLine("Catalog", statusInfo, fmt.Sprintf("%d playlists, %d items, %d/%d assets local (%s of %s)",
		status.Catalog.Playlists,
		status.Catalog.Items,
		status.Catalog.LocalAssets,
		status.Catalog.Assets,
		humanize.IBytes(uint64(max(status.Catalog.DownloadedBytes, 0))),
		humanize.IBytes(uint64(max(status.Catalog.DeclaredBytes, 0))),
	), colorize))
	fmt.Fprintln(out)

	if !status.Running {
		return
	}

	for _, line := range renderSectionHeader("Regions", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(status.Regions) == 0 {
		fmt.Fprintln(out, "No regions scheduled")
	} else {
		fmt.Fprint(out, renderTable(
			[]string{"Region", "Playlist", "State", "Asset", "Video"},
			regionRows(status.Regions),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
		))
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Video decoders in use: %d/%d\n", status.VideoSessions, status.VideoCapacity)

	if len(status.PlayRuns) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Now Playing", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprint(out, renderTable(
			[]string{"Run", "Region", "Asset", "Media", "Since", "Tick"},
			playRunRows(status.PlayRuns),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
		))
		fmt.Fprintln(out)
	}

	if len(status.Downloads) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Downloads", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprint(out, renderTable(
			[]string{"Playlist", "Progress", "Bytes", "Rate", "ETA", "Failed"},
			downloadRows(status.Downloads),
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
		))
		fmt.Fprintln(out)
	}

	if len(status.Problems) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Recent Problems", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, problem := range status.Problems {
			fmt.Fprintln(out, problemLine(problem, colorize))
		}
	}
}

func deviceLines(status *ipc.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 5)
	if !status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "Not running (run `signage start`)", colorize))
		return lines
	}
	lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	if status.DeviceID != "" {
		lines = append(lines, renderStatusLine("Device ID", statusInfo, status.DeviceID, colorize))
	}

	stateKind := statusWarn
	if status.Playable {
		stateKind = statusOK
	}
	if status.State == "unknown" {
		stateKind = statusInfo
	}
	lines = append(lines, renderStatusLine("State", stateKind, fmt.Sprintf("%s (%s)", status.StateMessage, status.State), colorize))

	switch {
	case !status.OnlineKnown:
		lines = append(lines, renderStatusLine("Network", statusInfo, "Not probed yet", colorize))
	case status.Online:
		lines = append(lines, renderStatusLine("Network", statusOK, "Online"+probeSuffix(status.LastProbe), colorize))
	default:
		lines = append(lines, renderStatusLine("Network", statusWarn, "Offline"+probeSuffix(status.LastProbe), colorize))
	}

	if status.Paired {
		detail := fmt.Sprintf("%d/%d assets cached", status.LocalAssets, status.RequiredAssets)
		kind := statusOK
		if status.LocalAssets < status.RequiredAssets {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine("Content", kind, detail, colorize))
	}
	lines = append(lines, renderStatusLine("Generation", statusInfo, fmt.Sprintf("%d", status.Generation), colorize))
	return lines
}

func probeSuffix(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	return fmt.Sprintf(" (checked %s)", humanize.Time(at))
}

func syncLine(summary *ipc.SyncSummary, colorize bool) string {
	if summary == nil {
		return renderStatusLine("Last Sync", statusInfo, "No sync yet", colorize)
	}
	kind := outcomeKind(summary.Outcome)
	detail := fmt.Sprintf("%s %s", summary.Outcome, humanize.Time(summary.At))
	if summary.Error != "" {
		detail += ": " + summary.Error
	} else if summary.Outcome == "applied" {
		detail += fmt.Sprintf(" (%d playlists, %d items)", summary.Playlists, summary.Items)
	}
	return renderStatusLine("Last Sync", kind, detail, colorize)
}

func regionRows(regions []ipc.RegionStatus) [][]string {
	rows := make([][]string, 0, len(regions))
	for _, region := range regions {
		playlist := region.PlaylistID
		if playlist == "" {
			playlist = "-"
		}
		asset := region.CurrentAssetID
		if asset == "" {
			asset = "-"
		}
		rows = append(rows, []string{region.RegionID, playlist, region.State, asset, yesNo(region.VideoPermit)})
	}
	return rows
}

func playRunRows(runs []ipc.PlayRun) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.RunID,
			run.RegionID,
			run.AssetID,
			run.MediaType,
			humanize.Time(run.StartedAt),
			fmt.Sprintf("%d", run.LastTick),
		})
	}
	return rows
}

func downloadRows(downloads []ipc.DownloadStatus) [][]string {
	rows := make([][]string, 0, len(downloads))
	for _, dl := range downloads {
		eta := "-"
		if dl.ETASeconds >= 0 && !dl.Done {
			eta = (time.Duration(dl.ETASeconds) * time.Second).String()
		}
		rate := "-"
		if dl.RateBytesPerSec > 0 {
			rate = humanize.IBytes(uint64(dl.RateBytesPerSec)) + "/s"
		}
		bytes := humanize.IBytes(uint64(max(dl.BytesDownloaded, 0)))
		if dl.TotalBytes > 0 {
			bytes += " / " + humanize.IBytes(uint64(dl.TotalBytes))
		}
		rows = append(rows, []string{
			dl.PlaylistID,
			fmt.Sprintf("%d/%d (%.0f%%)", dl.Finished, dl.Total, dl.Percent),
			bytes,
			rate,
			eta,
			fmt.Sprintf("%d", dl.Failed),
		})
	}
	return rows
}

func problemLine(problem ipc.Problem, colorize bool) string {
	kind := statusWarn
	if strings.EqualFold(problem.Level, "error") {
		kind = statusError
	}
	label := problem.Component
	if label == "" {
		label = "daemon"
	}
	detail := problem.Message
	if problem.Error != "" {
		detail += ": " + problem.Error
	}
	return renderStatusLine(label, kind, fmt.Sprintf("%s %s", problem.Time.Local().Format("15:04:05"), detail), colorize)
}
