package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"signage/internal/ipc"
)

type stateView struct {
	State          string `json:"state"`
	Message        string `json:"message"`
	Playable       bool   `json:"playable"`
	Paired         bool   `json:"paired"`
	Online         bool   `json:"online"`
	OnlineKnown    bool   `json:"online_known"`
	RequiredAssets int    `json:"required_assets"`
	LocalAssets    int    `json:"local_assets"`
}

func newStateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the device operating state and the inputs it was derived from",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				view := stateView{
					State:          status.State,
					Message:        status.StateMessage,
					Playable:       status.Playable,
					Paired:         status.Paired,
					Online:         status.Online,
					OnlineKnown:    status.OnlineKnown,
					RequiredAssets: status.RequiredAssets,
					LocalAssets:    status.LocalAssets,
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, view)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "State: %s\n", view.State)
				fmt.Fprintf(out, "Message: %s\n", view.Message)
				fmt.Fprintf(out, "Playable: %s\n", yesNo(view.Playable))
				fmt.Fprintf(out, "Paired: %s\n", yesNo(view.Paired))
				if view.OnlineKnown {
					fmt.Fprintf(out, "Online: %s\n", yesNo(view.Online))
				} else {
					fmt.Fprintln(out, "Online: unknown")
				}
				fmt.Fprintf(out, "Assets cached: %d/%d\n", view.LocalAssets, view.RequiredAssets)
				return nil
			})
		},
	}
}
