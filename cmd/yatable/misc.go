package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yanet-platform/yatable/controlplane/tablepb"
)

func newAlgoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "algo",
		Short: "Inspect table algorithms",
	}
	addClientFlags(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the registered algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client tablepb.TableServiceClient) error {
				resp, err := call(ctx, func(ctx context.Context) (*tablepb.ListAlgorithmsResponse, error) {
					return client.ListAlgorithms(ctx, &tablepb.ListAlgorithmsRequest{})
				})
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				defer w.Flush()

				fmt.Fprintln(w, "NAME\tTYPE\tDEFAULT\tTABLES")
				for _, algo := range resp.Algorithms {
					fmt.Fprintf(w, "%s\t%s\t%t\t%d\n", algo.Name, algo.Type, algo.Default, algo.RefCount)
				}
				return nil
			})
		},
	})

	return cmd
}

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the table registry",
	}
	addClientFlags(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "resize <max-tables>",
		Short: "Raise the maximum number of tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid size %q: %w", args[0], err)
			}

			return withClient(func(ctx context.Context, client tablepb.TableServiceClient) error {
				resp, err := call(ctx, func(ctx context.Context) (*tablepb.ResizeRegistryResponse, error) {
					return client.ResizeRegistry(ctx, &tablepb.ResizeRegistryRequest{Size: uint32(size)})
				})
				if err != nil {
					return err
				}

				fmt.Printf("registry holds up to %d tables\n", resp.Size)
				return nil
			})
		},
	})

	return cmd
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Manage server logging",
	}
	addClientFlags(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:       "level <debug|info|warn|error>",
		Short:     "Change the server log level",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"debug", "info", "warn", "error"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, client tablepb.TableServiceClient) error {
				_, err := call(ctx, func(ctx context.Context) (*tablepb.SetLogLevelResponse, error) {
					return client.SetLogLevel(ctx, &tablepb.SetLogLevelRequest{Level: args[0]})
				})
				return err
			})
		},
	})

	return cmd
}
