package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/joshuapare/lmm/lmm"
)

// Set by the release build via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type versionInfo struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	Built       string `json:"built"`
	Go          string `json:"go"`
	BTreeDegree int    `json:"btree_degree"`
}

// buildVersion fills in the commit from the embedded VCS stamp when the
// binary was built without ldflags.
func buildVersion() versionInfo {
	v := versionInfo{
		Version:     version,
		Commit:      commit,
		Built:       date,
		Go:          runtime.Version(),
		BTreeDegree: lmm.DefaultDegree,
	}
	if v.Commit != "none" {
		return v
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				v.Commit = s.Value
			}
		}
	}
	return v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := buildVersion()
		if jsonOut {
			return printJSON(v)
		}
		fmt.Printf("lmmctl %s (%s)\n", v.Version, v.Go)
		fmt.Printf("  commit: %s\n", v.Commit)
		fmt.Printf("  built: %s\n", v.Built)
		fmt.Printf("  free-list btree degree: %d\n", v.BTreeDegree)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
