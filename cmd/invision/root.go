package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/invision-ai/invision/internal/config"
)

var (
	logLevel string
	cameraID string
	userID   string
)

var rootCmd = &cobra.Command{
	Use:   "invision",
	Short: "Video rule-breach detection",
	Long: `invision describes what happens in a surveillance clip, then asks a
reasoning model whether any of the rules for the camera's room were broken.

Configuration is read from INVISION_* environment variables. Provider keys
come from GOOGLE_API_KEY and OPENAI_API_KEY.`,
	SilenceUsage: true,
}

// withApp runs fn with a signal-aware context and a fully closed app.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(logLevel)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// requireIDs checks the identifier flags. Rule resolution depends on the
// user, so commands that resolve rules must be given one.
func requireIDs(needUser bool) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, _ []string) error {
		if strings.TrimSpace(cameraID) == "" {
			return errors.New("--camera is required")
		}
		if needUser && strings.TrimSpace(userID) == "" {
			return errors.New("--user is required")
		}
		return nil
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "invision %s (commit %s, built %s)\n",
			config.Version, config.GitCommit, config.BuildTime)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	annotateCmd.Flags().StringVar(&cameraID, "camera", "", "camera identifier")
	annotateCmd.PreRunE = requireIDs(false)

	for _, c := range []*cobra.Command{analyzeCmd, runCmd, rulesCmd} {
		c.Flags().StringVar(&cameraID, "camera", "", "camera identifier")
		c.Flags().StringVar(&userID, "user", "", "user whose rules apply")
		c.PreRunE = requireIDs(true)
	}

	rootCmd.AddCommand(annotateCmd, analyzeCmd, runCmd, rulesCmd, seedCmd, serveCmd, watchCmd, versionCmd)
}
