package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/lmm/internal/logger"
	"github.com/joshuapare/lmm/internal/scenario"
	"github.com/joshuapare/lmm/internal/units"
)

var runValidate bool

func init() {
	cmd := newRunCmd()
	cmd.Flags().BoolVar(&runValidate, "validate", false, "Check allocator consistency after every step")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Replay a scenario and check its expectations",
		Long: `The run command replays a YAML scenario against a fresh allocator and
fails on the first step whose result differs from its expectations.

Example:
  lmmctl run boot.yaml
  lmmctl run boot.yaml --validate -v
  lmmctl run boot.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(args)
		},
	}
	return cmd
}

// RunSummary is the JSON output of the run command.
type RunSummary struct {
	Scenario      string `json:"scenario"`
	Steps         int    `json:"steps"`
	FreeBytes     uint64 `json:"free_bytes"`
	FreeBlocks    int    `json:"free_blocks"`
	ReservedBytes uint64 `json:"reserved_bytes"`
}

func runRun(args []string) error {
	path := args[0]
	printVerbose("Loading scenario: %s\n", path)

	s, err := scenario.Load(path)
	if err != nil {
		return err
	}

	res, err := scenario.Run(s, scenario.RunOptions{
		Logger:   logger.L,
		Validate: runValidate,
		OnStep: func(r scenario.StepResult) {
			if jsonOut {
				return
			}
			printVerbose("  %3d %-14s addr %s size %s %s\n",
				r.Index, r.Op, units.FormatAddr(r.Addr), units.FormatNumber(r.Size), scenario.ErrorName(r.Err))
		},
	})
	if err != nil {
		return fmt.Errorf("scenario %s: %w", scenarioName(s, path), err)
	}

	summary := RunSummary{
		Scenario:      scenarioName(s, path),
		Steps:         len(res.Steps),
		FreeBytes:     res.Allocator.FreeBytes(),
		FreeBlocks:    len(res.Allocator.Blocks()),
		ReservedBytes: res.Reserved.Bytes(),
	}
	if jsonOut {
		return printJSON(summary)
	}

	printInfo("Scenario %s: %d step(s) passed\n", summary.Scenario, summary.Steps)
	printInfo("  free:     %s B (%s) in %d block(s)\n",
		units.FormatNumber(summary.FreeBytes), units.FormatBytes(summary.FreeBytes), summary.FreeBlocks)
	printInfo("  reserved: %s B\n", units.FormatNumber(summary.ReservedBytes))
	return nil
}

func scenarioName(s *scenario.Scenario, path string) string {
	if s.Name != "" {
		return s.Name
	}
	return path
}
