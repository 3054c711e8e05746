// Command reelgen runs the video generation backend: the HTTP API, the
// pipeline workers, schema migrations, and a few operator tools.
//
// @title          Reel Generation API
// @version        1.0
// @description    Submit talking-avatar video jobs, follow their progress, and read credits.
// @BasePath       /api/v1
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-reel-backend/internal/config"
	"github.com/tbourn/go-reel-backend/internal/sysutil"

	_ "github.com/tbourn/go-reel-backend/docs"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reelgen",
	Short: "Video generation backend",
	Long: `reelgen turns a topic or script into a short avatar video.

Examples:
  reelgen serve                     # API with embedded workers
  reelgen worker                    # pipeline workers only
  reelgen migrate                   # create or update the schema
  reelgen watch <processId>         # follow a generation until it finishes
  reelgen credits grant u1 500      # add credits to a user`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		files, _ := cmd.Flags().GetStringSlice("env-file")
		loadEnvFiles(files)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env-file", []string{".env", ".env.local"}, "dotenv files to load before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(creditsCmd)
}

// loadEnvFiles loads whichever files exist. Variables already set in the
// environment win.
func loadEnvFiles(files []string) {
	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			continue
		}
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// loadConfig reads the configuration and installs the global logger.
func loadConfig(role string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, role)
	return cfg, nil
}
