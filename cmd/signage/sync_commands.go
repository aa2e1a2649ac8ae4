package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"signage/internal/ipc"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile with the content server now and report the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncNow()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				summary := resp.Summary
				fmt.Fprintf(out, "Outcome: %s\n", summary.Outcome)
				if summary.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", summary.Error)
				}
				if summary.Outcome == "applied" {
					fmt.Fprintf(out, "Playlists: %d\n", summary.Playlists)
					fmt.Fprintf(out, "Items: %d\n", summary.Items)
					if summary.RemovedPlaylists > 0 || summary.RemovedAssets > 0 {
						fmt.Fprintf(out, "Removed: %d playlists, %d assets\n", summary.RemovedPlaylists, summary.RemovedAssets)
					}
				}
				if summary.Fingerprint != "" {
					fmt.Fprintf(out, "Fingerprint: %s\n", shortFingerprint(summary.Fingerprint))
				}
				fmt.Fprintf(out, "Took: %s\n", humanize.Comma(summary.DurationMillis)+"ms")
				return nil
			})
		},
	}
}

func newPushCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "push <message>",
		Short: "Inject a server push message (content_update, registered)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Push(message)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Push %q delivered\n", message)
				return nil
			})
		},
	}
}

func newAttachCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <run-id> <json>",
		Short: "Attach an attribute document to an open play run",
		Long:  "Attach replaces the attributes recorded with the remaining samples of a play run. Open runs are listed under Now Playing in `signage status`.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := strings.TrimSpace(args[0])
			attrs := json.RawMessage(args[1])
			if !json.Valid(attrs) {
				return errors.New("attributes must be a JSON document")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AttachAttributes(runID, attrs)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Attributes attached to run %s\n", runID)
				return nil
			})
		},
	}
}

func shortFingerprint(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
