package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuapare/lmm/internal/hostmem"
	"github.com/joshuapare/lmm/internal/units"
)

var (
	hostTotal    string
	hostPageSize string
)

func init() {
	cmd := newHostCmd()
	cmd.Flags().StringVar(&hostTotal, "total", "", "Use this memory size instead of probing (e.g. 0x200000000)")
	cmd.Flags().StringVar(&hostPageSize, "page-size", "", "Use this page size instead of probing")
	rootCmd.AddCommand(cmd)
}

func newHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Show the host memory as allocator regions",
		Long: `The host command reads the physical memory size of this machine and
prints the region layout an allocator would be seeded with.

Example:
  lmmctl host
  lmmctl host --total 0x200000000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost()
		},
	}
	return cmd
}

// HostRegion is one region in the JSON output of the host command.
type HostRegion struct {
	Min      uint64 `json:"min"`
	Max      uint64 `json:"max"`
	Priority int    `json:"priority"`
	Flags    uint32 `json:"flags"`
}

// HostReport is the JSON output of the host command.
type HostReport struct {
	TotalRAM uint64       `json:"total_ram"`
	PageSize uint64       `json:"page_size"`
	Regions  []HostRegion `json:"regions"`
}

func hostInfo() (hostmem.Info, error) {
	info, probeErr := hostmem.Probe()
	if hostPageSize != "" {
		v, err := strconv.ParseUint(hostPageSize, 0, 64)
		if err != nil {
			return info, fmt.Errorf("invalid --page-size: %w", err)
		}
		info.PageSize = v
	}
	if hostTotal != "" {
		v, err := strconv.ParseUint(hostTotal, 0, 64)
		if err != nil {
			return info, fmt.Errorf("invalid --total: %w", err)
		}
		info.TotalRAM = v
		return info, nil
	}
	if probeErr != nil {
		return info, fmt.Errorf("failed to probe host memory: %w", probeErr)
	}
	return info, nil
}

func runHost() error {
	info, err := hostInfo()
	if err != nil {
		return err
	}
	layout := hostmem.Layout(info)

	if jsonOut {
		report := HostReport{TotalRAM: info.TotalRAM, PageSize: info.PageSize, Regions: []HostRegion{}}
		for _, r := range layout {
			report.Regions = append(report.Regions, HostRegion{
				Min: r.Min, Max: r.Max, Priority: r.Priority, Flags: uint32(r.Flags),
			})
		}
		return printJSON(report)
	}

	printInfo("Physical memory: %s B (%s)\n", units.FormatNumber(info.TotalRAM), units.FormatBytes(info.TotalRAM))
	printInfo("Page size:       %s B\n", units.FormatNumber(info.PageSize))
	printInfo("Regions (search order is by priority):\n")
	for _, r := range layout {
		printInfo("  [%s, %s) priority %2d flags %s  %s\n",
			units.FormatAddr(r.Min), units.FormatAddr(r.Max), r.Priority, r.Flags, units.FormatBytes(r.Size()))
	}
	return nil
}
