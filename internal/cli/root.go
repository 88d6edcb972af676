package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/domlin520/Website-analysis/internal/app"
	"github.com/domlin520/Website-analysis/internal/banner"
	"github.com/domlin520/Website-analysis/internal/config"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	outputFmt string
	topN      int
	noGeo     bool

	application *app.App
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "report",
	Short:   "One-shot access log reports",
	Version: banner.Version,
	Long: `Report reads access log files once, resolves visitor locations and prints
the same aggregates the API serves at /api/metrics and /api/traffic.

Log paths default to LOG_PATHS; configuration is read from .env and the environment.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	// PersistentPostRunE is skipped when RunE fails
	_ = teardown(rootCmd, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().IntVarP(&topN, "top", "n", 10, "length of ranked lists (0 = unlimited)")
	rootCmd.PersistentFlags().BoolVar(&noGeo, "no-geo", false, "skip location resolution")
}

func setup(cmd *cobra.Command, args []string) error {
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format %q (want text or json)", outputFmt)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if noGeo {
		cfg.GeoIP.Enabled = false
	}
	if len(args) > 0 {
		cfg.LogSources.Paths = args
	}

	// Info progress lines would interleave with the report; debug and trace are kept
	level := cfg.PtermLevel()
	if level == pterm.LogLevelInfo {
		level = pterm.LogLevelWarn
	}
	logger := pterm.DefaultLogger.WithLevel(level).WithWriter(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application, err = app.New(ctx, cfg, logger)
	return err
}

func teardown(cmd *cobra.Command, args []string) error {
	if application != nil {
		application.Close()
		application = nil
	}
	return nil
}
