package wallctl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"videowall/pkg/api/bosun"
	bosunclient "videowall/pkg/clients/bosun"
)

// resolveClient accepts either a client ID or a hostname. Hostnames are
// unique per coordinator because registration upserts on hostname.
func resolveClient(ctx context.Context, cli *bosunclient.Client, ref string) (*bosun.ClientView, error) {
	clientList, err := cli.ListClients(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range clientList {
		if clientList[i].ClientID == ref || strings.EqualFold(clientList[i].Hostname, ref) {
			return &clientList[i], nil
		}
	}
	return nil, fmt.Errorf("no client found matching %q", ref)
}

func newClientsCmd() *cobra.Command {
	cl := &cobra.Command{Use: "clients", Short: "Manage display clients"}
	cl.AddCommand(newClientsListCmd())
	cl.AddCommand(newClientsAssignCmd())
	cl.AddCommand(newClientsRemoveCmd())
	return cl
}

func newClientsListCmd() *cobra.Command {
	var groupRef string
	var activeOnly bool
	cmd := &cobra.Command{Use: "list", Short: "List display clients", RunE: func(cmd *cobra.Command, args []string) error {
		cli := apiClient()
		cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		groupID := ""
		if groupRef != "" {
			group, err := resolveGroup(cctx, cli, groupRef)
			if err != nil {
				return err
			}
			groupID = group.GroupID
		}

		var clientList []bosun.ClientView
		var err error
		if activeOnly {
			clientList, err = cli.ListActiveClients(cctx, groupID)
		} else {
			clientList, err = cli.ListClients(cctx, groupID)
		}
		if err != nil {
			return err
		}
		if output == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(clientList)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "HOSTNAME\tID\tSTATUS\tGROUP\tSTREAM\tLAST SEEN")
		for _, c := range clientList {
			group := c.GroupName
			if group == "" {
				group = "-"
			}
			stream := c.StreamID
			if stream == "" {
				stream = "-"
			}
			lastSeen := c.LastSeenFormatted
			if lastSeen == "" {
				lastSeen = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", c.Hostname, c.ClientID, c.Status, group, stream, lastSeen)
		}
		return w.Flush()
	}}
	cmd.Flags().StringVar(&groupRef, "group", "", "filter by group ID or name")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only clients seen within the liveness window")
	return cmd
}

func newClientsAssignCmd() *cobra.Command {
	var groupRef string
	var streamID string
	var videoFile string
	var detach bool
	cmd := &cobra.Command{
		Use:   "assign <client>",
		Short: "Assign a client to a group, stream slot, or video file",
		Args:  cobra.ExactArgs(1),
		Example: `  # Move a client into the lobby wall
  wallctl clients assign pi-lobby-01 --group lobby

  # Pin a client to a specific stream slot
  wallctl clients assign pi-lobby-01 --stream live/abc/test2

  # Take a client off its wall
  wallctl clients assign pi-lobby-01 --detach`,
		RunE: func(cmd *cobra.Command, args []string) error {
			set := 0
			if groupRef != "" {
				set++
			}
			if detach {
				set++
			}
			if streamID != "" {
				set++
			}
			if videoFile != "" {
				set++
			}
			if set != 1 {
				return fmt.Errorf("exactly one of --group, --detach, --stream, or --video is required")
			}

			cli := apiClient()
			cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			client, err := resolveClient(cctx, cli, args[0])
			if err != nil {
				return err
			}

			var view *bosun.ClientView
			switch {
			case detach:
				view, err = cli.AssignGroup(cctx, client.ClientID, nil)
			case groupRef != "":
				var group *bosun.GroupView
				group, err = resolveGroup(cctx, cli, groupRef)
				if err != nil {
					return err
				}
				view, err = cli.AssignGroup(cctx, client.ClientID, &group.GroupID)
			case streamID != "":
				view, err = cli.AssignStream(cctx, client.ClientID, streamID)
			default:
				view, err = cli.AssignVideo(cctx, client.ClientID, videoFile)
			}
			if err != nil {
				return err
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			switch {
			case detach:
				fmt.Fprintf(cmd.OutOrStdout(), "Detached %s from its group\n", view.Hostname)
			case view.StreamID != "":
				fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %q (stream=%s)\n", view.Hostname, view.GroupName, view.StreamID)
			case view.VideoFile != "":
				fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to video %q\n", view.Hostname, view.VideoFile)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %q\n", view.Hostname, view.GroupName)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&groupRef, "group", "", "target group ID or name")
	cmd.Flags().BoolVar(&detach, "detach", false, "remove the client from its group")
	cmd.Flags().StringVar(&streamID, "stream", "", "pin to a specific stream slot")
	cmd.Flags().StringVar(&videoFile, "video", "", "assign a local video file")
	return cmd
}

func newClientsRemoveCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{Use: "remove <client>", Short: "Remove a client by ID or hostname", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		cli := apiClient()
		cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		client, err := resolveClient(cctx, cli, args[0])
		if err != nil {
			return err
		}
		if !promptConfirm(fmt.Sprintf("Remove client %s (%s)?", client.Hostname, client.ClientID), yes) {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			return nil
		}
		if err := cli.RemoveClient(cctx, client.ClientID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed client %s\n", client.Hostname)
		return nil
	}}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}
