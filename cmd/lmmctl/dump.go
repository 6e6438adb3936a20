package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/lmm/internal/logger"
	"github.com/joshuapare/lmm/internal/scenario"
	"github.com/joshuapare/lmm/internal/units"
)

var (
	dumpReserved bool
	dumpPageSize uint64
)

func init() {
	cmd := newDumpCmd()
	cmd.Flags().BoolVar(&dumpReserved, "reserved", false, "Also list ranges taken out by range surgery")
	cmd.Flags().Uint64Var(&dumpPageSize, "page-size", 0, "Round reserved ranges out to this page size")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <scenario>",
		Short: "Replay a scenario and dump the allocator state",
		Long: `The dump command replays a scenario and prints the regions, free blocks
and counters of the resulting allocator.

Example:
  lmmctl dump boot.yaml
  lmmctl dump boot.yaml --reserved --page-size 4096
  lmmctl dump boot.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args)
		},
	}
	return cmd
}

func runDump(args []string) error {
	path := args[0]
	printVerbose("Loading scenario: %s\n", path)

	s, err := scenario.Load(path)
	if err != nil {
		return err
	}
	res, err := scenario.Run(s, scenario.RunOptions{Logger: logger.L})
	if err != nil {
		return fmt.Errorf("scenario %s: %w", scenarioName(s, path), err)
	}

	if jsonOut {
		data, err := res.Allocator.DumpJSON()
		if err != nil {
			return fmt.Errorf("failed to encode dump: %w", err)
		}
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	}

	if err := res.Allocator.Dump(os.Stdout); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}

	if dumpReserved {
		ranges := res.Reserved.Ranges()
		if dumpPageSize != 0 {
			ranges = res.Reserved.PageRanges(dumpPageSize)
			if ranges == nil && res.Reserved.Len() > 0 {
				return fmt.Errorf("page size %d is not a power of two", dumpPageSize)
			}
		}
		fmt.Fprintln(os.Stdout, "Reserved:")
		for _, r := range ranges {
			fmt.Fprintf(os.Stdout, "  [%s, %s) %s B\n",
				units.FormatAddr(r.Start), units.FormatAddr(r.End), units.FormatNumber(r.Size()))
		}
	}
	return nil
}
