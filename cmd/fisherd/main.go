// Command fisherd runs the Fisher webhook dispatch daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/detentsh/fisher/internal/config"
	"github.com/detentsh/fisher/internal/obs"
	"github.com/detentsh/fisher/internal/supervisor"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var flags config.Flags

var rootCmd = &cobra.Command{
	Use:   "fisherd <scripts-dir>",
	Short: "Dispatch webhooks to local scripts",
	Long: `fisherd watches a directory of executable scripts, matches incoming
webhook deliveries against the provider each script declares in its
leading comment block, and runs matching scripts with the delivery
persisted to disk and exposed through the environment.`,
	Version:       Version,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags.ScriptsDir = args[0]
		changed := cmd.Flags().Changed

		logger := obs.NewLogger(slog.LevelInfo)
		cleanup := obs.InitSentry(Version)
		defer cleanup()

		sup := supervisor.New(flags, changed, logger)
		if err := sup.Run(context.Background()); err != nil {
			obs.CaptureError(err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().IntVar(&flags.BehindProxies, "behind-proxies", 0, "number of trusted reverse proxies in front of fisherd, for X-Forwarded-For parsing")
	rootCmd.Flags().StringVarP(&flags.Bind, "bind", "b", "", "address to listen on (default 127.0.0.1:8000)")
	rootCmd.Flags().IntVarP(&flags.Jobs, "jobs", "j", 0, "number of concurrent worker threads (default 1)")
	rootCmd.Flags().BoolVar(&flags.NoHealth, "no-health", false, "disable the /health endpoint")
	rootCmd.Flags().BoolVarP(&flags.Recursive, "recursive", "r", false, "scan the scripts directory recursively")
	rootCmd.Flags().StringVar(&flags.RateLimit, "rate-limit", "", "rate limit applied to failed deliveries per source IP (default 10/1m)")
	rootCmd.Flags().StringArrayVarP(&flags.Env, "env", "e", nil, "extra environment variable passed to every script, as KEY=VALUE (repeatable)")
	rootCmd.Flags().StringVar(&flags.ConfigPath, "config", "", "path to a TOML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fisherd:", err)
		os.Exit(1)
	}
}
