package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
	backendURL string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	if envPort == "" {
		envPort = "8080"
	}
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "gig-geni",
		Short:        "GiG Geni competition journey and quiz session service",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&backendURL, "backend-url", os.Getenv("BACKEND_URL"), "GiG Geni backend base URL (overrides config)")
	cmd.AddCommand(NewStartCmd(&configPath, &port, &backendURL))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewEvaluateCmd())
	return cmd
}
