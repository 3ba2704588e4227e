package wallctl

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{Use: "status", Short: "Show coordinator status", RunE: func(cmd *cobra.Command, args []string) error {
		cli := apiClient()
		cctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := cli.Status(cctx)
		if err != nil {
			return err
		}
		if output == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bosun %s\n", st.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "Clients: %d (%d active)\n", st.Clients, st.ActiveClients)
		for _, k := range sortedKeys(st.ClientsByStatus) {
			fmt.Fprintf(cmd.OutOrStdout(), " - %s: %d\n", k, st.ClientsByStatus[k])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Groups: %d (%d streaming)\n", st.Groups, st.ActiveGroups)
		for _, k := range sortedKeys(st.GroupsByStatus) {
			fmt.Fprintf(cmd.OutOrStdout(), " - %s: %d\n", k, st.GroupsByStatus[k])
		}
		return nil
	}}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
