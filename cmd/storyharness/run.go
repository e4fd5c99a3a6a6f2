package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"storyharness/internal/config"
	"storyharness/internal/logger"
	"storyharness/internal/storage"
	"storyharness/internal/suite"
	"storyharness/pkg/api"
)

var (
	flagRunMode     string
	flagRunDevTools string
	flagRunBaseURL  string
	flagRunNoDB     bool
	flagRunDebug    bool
	flagRunFilters  suite.RegexFilters
)

func init() {
	runCmd.Flags().StringVar(&flagRunMode, "mode", "", "sim (in-process client) or cdp (real browser)")
	runCmd.Flags().StringVar(&flagRunDevTools, "devtools", "", "DevTools HTTP endpoint used in cdp mode")
	runCmd.Flags().StringVar(&flagRunBaseURL, "base-url", "", "URL of the page under test")
	runCmd.Flags().Var(&flagRunFilters.MustMatch, "run", "only run scenarios matching this regex (repeatable)")
	runCmd.Flags().Var(&flagRunFilters.MustNotMatch, "skip", "skip scenarios matching this regex (repeatable)")
	runCmd.Flags().BoolVar(&flagRunNoDB, "no-journal", false, "do not record the run in the sqlite journal")
	runCmd.Flags().BoolVar(&flagRunDebug, "debug", false, "print captured debug output for passing scenarios too")

	rootCmd.AddCommand(runCmd)
}

// failedRunError 场景失败，结果已打印
type failedRunError struct{ failed int }

func (e *failedRunError) Error() string {
	return fmt.Sprintf("%d scenario(s) failed", e.failed)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scenario suite",
	Long: `Run the Hacker Stories scenario suite.

In sim mode the suite runs against an in-process double of the client and a
local stub of the search API. In cdp mode it drives a Chrome instance started
with --remote-debugging-port and intercepts its traffic through DevTools.

Examples:
  storyharness run
  storyharness run --run "Last searches" --skip "max of 5"
  storyharness run --mode cdp --devtools http://127.0.0.1:9222 --base-url http://localhost:3000/`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		applyRunFlags(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		log := logger.New(logger.Options{Level: cfg.Log.Level, Writer: cfg.Log.Writer, File: cfg.Log.File})

		var journal *storage.Journal
		if !flagRunNoDB {
			journal, err = storage.Open(cfg.Sqlite, log)
			if err != nil {
				return err
			}
			defer journal.Close()
		}

		svc := api.NewService(log, journal)
		id, err := svc.StartSession(cfg)
		if err != nil {
			return err
		}
		defer svc.StopSession(id)

		out := suite.NewConsoleTestLogger(cmd.OutOrStdout())
		out.DebugOutputOnSuccess = flagRunDebug
		for _, line := range flagRunFilters.Describe() {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := svc.RunSuite(ctx, id, flagRunFilters.AsFilter, out)
		out.Summary(res)
		if err != nil {
			return err
		}
		if _, failed, _ := res.Counts(); failed > 0 {
			return &failedRunError{failed: failed}
		}
		return nil
	},
}

func applyRunFlags(cfg *config.Config) {
	if flagRunMode != "" {
		cfg.Harness.Mode = flagRunMode
	}
	if flagRunDevTools != "" {
		cfg.Harness.DevToolsURL = flagRunDevTools
	}
	if flagRunBaseURL != "" {
		cfg.Harness.BaseURL = flagRunBaseURL
	}
}
