// Command ext_unvendored_fetch_run fetches and runtime-probes unvendored
// extension candidates against the real JS extension runtime, producing a
// conformance report CI can gate on.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pi-run/pi/internal/conformance"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var logLevel string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ext_unvendored_fetch_run",
		Short: "Fetch and runtime-probe unvendored extension candidates",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				level = log.InfoLevel
			}
			log.SetLevel(level)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(runAllCmd(), probeOneCmd())
	return root
}

func runAllCmd() *cobra.Command {
	var cfg conformance.RunConfig
	var fetchTimeoutSecs, probeTimeoutSecs int64
	var onlyIDs []string

	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Fetch and probe a corpus of candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.FetchTimeout = time.Duration(fetchTimeoutSecs) * time.Second
			cfg.ProbeTimeout = time.Duration(probeTimeoutSecs) * time.Second
			cfg.OnlyIDs = onlyIDs

			repoRoot, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
			cfg.RepoRoot = repoRoot

			exePath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve current executable path: %w", err)
			}
			cfg.ExePath = exePath

			log.Info("starting conformance run", "workers", cfg.Workers, "candidate_pool", cfg.CandidatePool)

			// Only drive an interactive, self-overwriting progress line when
			// stdout is an actual terminal; a CI log or redirected file gets
			// the plain start/complete log lines instead.
			if term.IsTerminal(int(os.Stdout.Fd())) {
				var done int
				cfg.OnResult = func(conformance.CandidateResult) {
					done++
					fmt.Fprintf(os.Stderr, "\rprobed %d candidate(s)...", done)
				}
			}

			report, err := conformance.RunAll(context.Background(), cfg)
			if term.IsTerminal(int(os.Stdout.Fd())) {
				fmt.Fprintln(os.Stderr)
			}
			if err != nil {
				return err
			}

			log.Info("wrote report", "path", cfg.OutJSON)
			log.Info("wrote events", "path", cfg.OutJSONL)
			log.Info("run complete",
				"total", report.Counts.TotalSelected,
				"probe_pass", report.Counts.ProbePass,
				"probe_fail", report.Counts.ProbeFail,
				"probe_timeout", report.Counts.ProbeTimeout,
			)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.CandidatePool, "candidate-pool", "docs/extension-candidate-pool.json", "candidate pool containing vendored + unvendored entries")
	flags.StringVar(&cfg.PriorityJSON, "priority-json", "docs/extension-priority.json", "optional priority ranking file")
	flags.StringVar(&cfg.CodeSearchSummary, "code-search-summary", "docs/extension-code-search-summary.json", "optional code-search summary")
	flags.StringVar(&cfg.OutJSON, "out-json", "tests/ext_conformance/reports/pipeline/unvendored_fetch_probe_report.json", "output JSON report")
	flags.StringVar(&cfg.OutJSONL, "out-jsonl", "tests/ext_conformance/reports/pipeline/unvendored_fetch_probe_events.jsonl", "output JSONL event stream")
	flags.StringVar(&cfg.CacheDir, "cache-dir", ".tmp-pi-unvendored-cache", "cache directory for fetched sources")
	flags.IntVar(&cfg.Workers, "workers", 4, "number of worker goroutines")
	flags.IntVar(&cfg.Limit, "limit", 0, "optional hard limit on number of candidates to process")
	flags.BoolVar(&cfg.IncludeVendored, "include-vendored", false, "include vendored candidates too")
	flags.Int64Var(&fetchTimeoutSecs, "fetch-timeout-secs", 120, "fetch command timeout per candidate")
	flags.Int64Var(&probeTimeoutSecs, "probe-timeout-secs", 20, "probe subprocess timeout per candidate")
	flags.IntVar(&cfg.MaxScanFiles, "max-scan-files", 5000, "max files to scan when locating an entrypoint")
	flags.Int64Var(&cfg.MaxFileBytes, "max-file-bytes", 1_500_000, "max bytes to read per source file while scanning")
	flags.BoolVar(&cfg.NoProbe, "no-probe", false, "disable runtime probe and only fetch + detect entrypoints")
	flags.StringArrayVar(&onlyIDs, "only-id", nil, "restrict run to explicit candidate ids")

	return cmd
}

func probeOneCmd() *cobra.Command {
	var entry, cwd string

	cmd := &cobra.Command{
		Use:   "probe-one",
		Short: "Probe one entrypoint with the real extension runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			result := conformance.RunProbeOne(ctx, entry, cwd)
			out, err := json.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&entry, "entry", "", "entrypoint source file to probe")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory the probe runs with")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("cwd")

	return cmd
}
