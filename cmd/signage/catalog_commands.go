package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"signage/internal/catalog"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the local content catalog (works without the daemon)",
	}
	catalogCmd.AddCommand(newCatalogPlaylistsCommand(ctx))
	catalogCmd.AddCommand(newCatalogAssetsCommand(ctx))
	catalogCmd.AddCommand(newCatalogEventsCommand(ctx))
	return catalogCmd
}

type playlistView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Items     int       `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newCatalogPlaylistsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "playlists",
		Short: "List playlists with item counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(store *catalog.Store) error {
				playlists, err := store.ListPlaylists(cmd.Context())
				if err != nil {
					return err
				}
				views := make([]playlistView, 0, len(playlists))
				for _, p := range playlists {
					views = append(views, playlistView{ID: p.ID, Name: p.Name, Items: p.ItemCount, UpdatedAt: p.UpdatedAt})
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No playlists")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{v.ID, v.Name, strconv.Itoa(v.Items), humanize.Time(v.UpdatedAt)})
				}
				fmt.Fprint(out, renderTable([]string{"ID", "Name", "Items", "Updated"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}

type assetView struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	MediaType    string     `json:"media_type"`
	SizeBytes    int64      `json:"size_bytes"`
	Local        bool       `json:"local"`
	LocalPath    string     `json:"local_path,omitempty"`
	RemoteURL    string     `json:"remote_url"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
}

func newCatalogAssetsCommand(ctx *commandContext) *cobra.Command {
	var missingOnly bool
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List assets and whether each is cached locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(store *catalog.Store) error {
				assets, err := store.ListAssets(cmd.Context())
				if err != nil {
					return err
				}
				views := make([]assetView, 0, len(assets))
				for _, a := range assets {
					local := a.LocalPath != ""
					if missingOnly && local {
						continue
					}
					views = append(views, assetView{
						ID:           a.ID,
						Title:        a.Title,
						MediaType:    a.MediaType,
						SizeBytes:    a.SizeBytes,
						Local:        local,
						LocalPath:    a.LocalPath,
						RemoteURL:    a.RemoteURL,
						DownloadedAt: a.DownloadedAt,
					})
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No assets")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					size := "unknown"
					if v.SizeBytes > 0 {
						size = humanize.IBytes(uint64(v.SizeBytes))
					}
					rows = append(rows, []string{v.ID, v.Title, v.MediaType, size, yesNo(v.Local)})
				}
				fmt.Fprint(out, renderTable([]string{"ID", "Title", "Type", "Size", "Local"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&missingOnly, "missing", false, "Only show assets without a local file")
	return cmd
}

type eventView struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Tick       int64     `json:"tick"`
	RegionID   string    `json:"region_id"`
	PlaylistID string    `json:"playlist_id,omitempty"`
	AssetID    string    `json:"asset_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

func newCatalogEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent play events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(store *catalog.Store) error {
				events, err := store.PlayEvents(cmd.Context(), limit)
				if err != nil {
					return err
				}
				views := make([]eventView, 0, len(events))
				for _, e := range events {
					views = append(views, eventView{
						ID:         e.ID,
						RunID:      e.RunID,
						Kind:       string(e.Kind),
						Tick:       e.Tick,
						RegionID:   e.RegionID,
						PlaylistID: e.PlaylistID,
						AssetID:    e.AssetID,
						RecordedAt: e.RecordedAt,
					})
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No play events recorded")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						v.RecordedAt.Local().Format("2006-01-02 15:04:05"),
						v.RegionID,
						v.AssetID,
						v.Kind,
						strconv.FormatInt(v.Tick, 10),
					})
				}
				fmt.Fprint(out, renderTable([]string{"Recorded", "Region", "Asset", "Kind", "Tick"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of events to show")
	return cmd
}
