package wallctl

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"videowall/pkg/auth"
	bosunclient "videowall/pkg/clients/bosun"
)

var (
	cfgFile   string
	serverURL string
	token     string
	output    string
)

const requestTimeout = 15 * time.Second

// NewRootCmd returns the root command for the wallctl CLI
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wallctl",
		Short:         "wallctl — operator tool for the Bosun video wall coordinator",
		Long:          "wallctl — manage wall groups, display clients, and stream layouts on a Bosun coordinator.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wallctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "coordinator base URL (default: http://localhost:18090)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "service token for admin endpoints")
	rootCmd.PersistentFlags().StringVar(&output, "output", "", "output format: json|text (default: text)")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(newGroupsCmd())
	rootCmd.AddCommand(newClientsCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.wallctl")
			viper.SetConfigName("config")
		}
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("WALLCTL")
	viper.AutomaticEnv()

	// Ignore missing config
	_ = viper.ReadInConfig()
}

func resolveServer() string {
	if serverURL != "" {
		return serverURL
	}
	if v := viper.GetString("server"); v != "" {
		return v
	}
	return "http://localhost:18090"
}

func resolveToken() string {
	if token != "" {
		return token
	}
	if v := viper.GetString("token"); v != "" {
		return v
	}
	// Running on the coordinator host itself, reuse its own token.
	return auth.GetServiceToken()
}

// apiClient builds a coordinator client from flags, environment
// (WALLCTL_SERVER, WALLCTL_TOKEN, SERVICE_TOKEN), and the config file,
// in that order.
func apiClient() *bosunclient.Client {
	return bosunclient.NewClient(bosunclient.Config{
		BaseURL:      resolveServer(),
		ServiceToken: resolveToken(),
		Timeout:      requestTimeout,
	})
}

// validateOrientation ensures orientation is one of the supported layouts
func validateOrientation(o string) error {
	valid := map[string]bool{"horizontal": true, "vertical": true, "grid": true}
	if !valid[o] {
		return fmt.Errorf("invalid orientation %q: must be 'horizontal', 'vertical', or 'grid'", o)
	}
	return nil
}

// promptConfirm asks user for confirmation. Returns true if user confirms.
// If skipConfirm is true (--yes flag), returns true without prompting.
func promptConfirm(prompt string, skipConfirm bool) bool {
	if skipConfirm {
		return true
	}

	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
