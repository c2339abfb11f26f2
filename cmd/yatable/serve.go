package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/yatable/common/go/logging"
	"github.com/yanet-platform/yatable/common/go/xcmd"
	"github.com/yanet-platform/yatable/controlplane"
)

var serveCmdArgs struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the table engine and expose its gRPC API",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			if errors.Is(err, xcmd.Interrupted{}) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveCmdArgs.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	serveCmd.MarkFlagRequired("config")
}

func runServe() error {
	cfg, err := controlplane.LoadConfig(serveCmdArgs.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, atomicLevel, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	server, err := controlplane.NewServer(
		cfg,
		controlplane.WithLog(log),
		controlplane.WithAtomicLogLevel(&atomicLevel),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer server.Close()

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return server.Run(ctx)
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}
