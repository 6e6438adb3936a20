package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/joshuapare/lmm/internal/hostmem"
	"github.com/joshuapare/lmm/internal/logger"
	"github.com/joshuapare/lmm/internal/scenario"
	"github.com/joshuapare/lmm/internal/server"
	"github.com/joshuapare/lmm/lmm"
	"github.com/joshuapare/lmm/lmm/reserve"
)

var (
	serveListen   string
	serveScenario string
	serveHost     bool
	serveValidate bool
)

func init() {
	cmd := newServeCmd()
	cmd.Flags().StringVar(&serveListen, "listen", "localhost:8080", "Address to listen on")
	cmd.Flags().StringVar(&serveScenario, "scenario", "", "Replay this scenario before serving")
	cmd.Flags().BoolVar(&serveHost, "host", false, "Seed the allocator with the host memory layout")
	cmd.Flags().BoolVar(&serveValidate, "validate", false, "Check allocator consistency after every mutation")
	rootCmd.AddCommand(cmd)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an allocator over HTTP",
		Long: `The serve command exposes one allocator through a JSON HTTP API until
interrupted.

Example:
  lmmctl serve
  lmmctl serve --listen :9000 --scenario boot.yaml
  lmmctl serve --host --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
	return cmd
}

// buildServer prepares the served allocator from the serve flags.
func buildServer() (*server.Server, error) {
	if serveScenario != "" && serveHost {
		return nil, fmt.Errorf("--scenario and --host are mutually exclusive")
	}

	opts := server.Options{Logger: logger.L, Validate: serveValidate}
	switch {
	case serveScenario != "":
		s, err := scenario.Load(serveScenario)
		if err != nil {
			return nil, err
		}
		mu := &sync.Mutex{}
		res, err := scenario.Run(s, scenario.RunOptions{Logger: logger.L, Validate: serveValidate, Locker: mu})
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenarioName(s, serveScenario), err)
		}
		opts.Allocator, opts.Locker, opts.Reserved = res.Allocator, mu, res.Reserved
		printVerbose("Replayed %d step(s) from %s\n", len(res.Steps), serveScenario)

	case serveHost:
		info, err := hostmem.Probe()
		if err != nil {
			return nil, fmt.Errorf("failed to probe host memory: %w", err)
		}
		mu := &sync.Mutex{}
		tr := reserve.NewTracker()
		a := lmm.New(&lmm.Options{Locker: mu, Logger: logger.L, Tracker: tr, Validate: serveValidate})
		if err := hostmem.Seed(a, info); err != nil {
			return nil, err
		}
		opts.Allocator, opts.Locker, opts.Reserved = a, mu, tr
	}
	return server.New(opts), nil
}

func runServe(ctx context.Context) error {
	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv, err := buildServer()
	if err != nil {
		return err
	}
	printInfo("Serving allocator on http://%s\n", serveListen)
	return srv.Run(ctx, serveListen)
}
