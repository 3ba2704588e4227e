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

// resolveGroup accepts either a group ID or a group name. Names are matched
// case-insensitively, which is safe because the coordinator rejects
// duplicate names regardless of case.
func resolveGroup(ctx context.Context, cli *bosunclient.Client, ref string) (*bosun.GroupView, error) {
	groups, err := cli.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].GroupID == ref || strings.EqualFold(groups[i].Name, ref) {
			return &groups[i], nil
		}
	}
	return nil, fmt.Errorf("no group found matching %q", ref)
}

func newGroupsCmd() *cobra.Command {
	grp := &cobra.Command{Use: "groups", Short: "Manage wall groups"}
	grp.AddCommand(newGroupsListCmd())
	grp.AddCommand(newGroupsCreateCmd())
	grp.AddCommand(newGroupsDeleteCmd())
	grp.AddCommand(newGroupsStartCmd())
	grp.AddCommand(newGroupsStopCmd())
	grp.AddCommand(newGroupsLayoutCmd())
	return grp
}

func describeLayout(g bosun.GroupView) string {
	if g.GridRows > 0 && g.GridCols > 0 {
		return fmt.Sprintf("grid %dx%d", g.GridRows, g.GridCols)
	}
	return g.Orientation
}

func newGroupsListCmd() *cobra.Command {
	return &cobra.Command{Use: "list", Short: "List wall groups", RunE: func(cmd *cobra.Command, args []string) error {
		cli := apiClient()
		cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		groups, err := cli.ListGroups(cctx)
		if err != nil {
			return err
		}
		if output == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(groups)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tID\tSTATUS\tLAYOUT\tCLIENTS\tSRT PORT")
		for _, g := range groups {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\n", g.Name, g.GroupID, g.Status, describeLayout(g), g.ActiveClients, g.ScreenCount, g.SRTPort)
		}
		return w.Flush()
	}}
}

func newGroupsCreateCmd() *cobra.Command {
	var name string
	var description string
	var orientation string
	var videoFile string
	var screens int
	var rows int
	var cols int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a wall group",
		Example: `  # Three screens side by side
  wallctl groups create --name lobby --screens 3

  # A 2x2 grid wall
  wallctl groups create --name atrium --orientation grid --rows 2 --cols 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}
			if err := validateOrientation(orientation); err != nil {
				return fmt.Errorf("--orientation: %w", err)
			}
			if orientation == "grid" && (rows < 1 || cols < 1) {
				return fmt.Errorf("--rows and --cols are required for grid orientation")
			}

			cli := apiClient()
			cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			group, err := cli.CreateGroup(cctx, &bosun.CreateGroupRequest{
				Name:        name,
				Description: description,
				ScreenCount: screens,
				Orientation: orientation,
				GridRows:    rows,
				GridCols:    cols,
				VideoFile:   videoFile,
			})
			if err != nil {
				return err
			}
			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(group)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created group %q (id=%s) screens=%d layout=%s srt_port=%d\n", group.Name, group.GroupID, group.ScreenCount, describeLayout(*group), group.SRTPort)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "group name (unique)")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().IntVar(&screens, "screens", 1, "number of screens in the wall")
	cmd.Flags().StringVar(&orientation, "orientation", "horizontal", "layout: horizontal|vertical|grid")
	cmd.Flags().IntVar(&rows, "rows", 0, "grid rows (grid orientation)")
	cmd.Flags().IntVar(&cols, "cols", 0, "grid columns (grid orientation)")
	cmd.Flags().StringVar(&videoFile, "video-file", "", "default local video file for members")
	return cmd
}

func newGroupsDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{Use: "delete <group>", Short: "Delete a wall group by ID or name", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		cli := apiClient()
		cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		group, err := resolveGroup(cctx, cli, args[0])
		if err != nil {
			return err
		}
		if !promptConfirm(fmt.Sprintf("Delete group %q (%s)? Its clients will be detached", group.Name, group.GroupID), yes) {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			return nil
		}
		if err := cli.DeleteGroup(cctx, group.GroupID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted group %q\n", group.Name)
		return nil
	}}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func newGroupsStartCmd() *cobra.Command {
	var width int
	var height int
	var videoFile string
	cmd := &cobra.Command{Use: "start <group>", Short: "Start a group's wall stream", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		cli := apiClient()
		cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		group, err := resolveGroup(cctx, cli, args[0])
		if err != nil {
			return err
		}
		started, err := cli.StartStream(cctx, group.GroupID, &bosun.StartStreamRequest{
			FrameWidth:  width,
			FrameHeight: height,
			VideoFile:   videoFile,
		})
		if err != nil {
			return err
		}
		if output == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(started)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started %q (%dx%d)\n", started.Name, started.FrameWidth, started.FrameHeight)
		for _, s := range started.AvailableStreams {
			fmt.Fprintf(cmd.OutOrStdout(), " - %s\n", s)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "SRT ingest port: %d\n", started.SRTPort)
		return nil
	}}
	cmd.Flags().IntVar(&width, "width", 0, "full frame width override (default: coordinator setting)")
	cmd.Flags().IntVar(&height, "height", 0, "full frame height override (default: coordinator setting)")
	cmd.Flags().StringVar(&videoFile, "video-file", "", "video file to distribute to members")
	return cmd
}

func newGroupsStopCmd() *cobra.Command {
	return &cobra.Command{Use: "stop <group>", Short: "Stop a group's wall stream", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		cli := apiClient()
		cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		group, err := resolveGroup(cctx, cli, args[0])
		if err != nil {
			return err
		}
		stopped, err := cli.StopStream(cctx, group.GroupID)
		if err != nil {
			return err
		}
		if output == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stopped)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped %q\n", stopped.Name)
		return nil
	}}
}

func newGroupsLayoutCmd() *cobra.Command {
	return &cobra.Command{Use: "layout <group>", Short: "Show a group's planned viewports", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		cli := apiClient()
		cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		group, err := resolveGroup(cctx, cli, args[0])
		if err != nil {
			return err
		}
		layout, err := cli.GetLayout(cctx, group.GroupID)
		if err != nil {
			return err
		}
		if output == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(layout)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Layout for %q: %dx%d %s\n", layout.GroupName, layout.FrameWidth, layout.FrameHeight, layout.Orientation)
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tSTREAM\tPOSITION\tX\tY\tWIDTH\tHEIGHT")
		if layout.FullFrame != nil {
			fv := layout.FullFrame
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n", fv.Index, fv.StreamID, fv.Position, fv.X, fv.Y, fv.Width, fv.Height)
		}
		for _, v := range layout.Viewports {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n", v.Index, v.StreamID, v.Position, v.X, v.Y, v.Width, v.Height)
		}
		return w.Flush()
	}}
}
