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

var tableCreateArgs struct {
	Type      string
	ValueType string
	Algorithm string
	Limit     uint32
	FlowMask  string
}

var tableModifyArgs struct {
	Limit  uint32
	Locked bool
}

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage tables",
	}
	addClientFlags(cmd)

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a table",
		Example: `  yatable table create blocklist --type addr --limit 100000
  yatable table create dns --type flow --flow-mask dst-ip,dst-port --algo "flow:hash size=4096"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTableCreate(args[0])
		},
	}
	create.Flags().StringVarP(&tableCreateArgs.Type, "type", "t", "", "Key type: addr, iface, number or flow (required)")
	create.Flags().StringVar(&tableCreateArgs.ValueType, "value-type", "", "Value type, for example tag or skipto")
	create.Flags().StringVar(&tableCreateArgs.Algorithm, "algo", "", "Algorithm configuration, the type default when empty")
	create.Flags().Uint32Var(&tableCreateArgs.Limit, "limit", 0, "Maximum number of entries, unbounded when zero")
	create.Flags().StringVar(&tableCreateArgs.FlowMask, "flow-mask", "", "Matched fields of flow tables")
	create.MarkFlagRequired("type")

	modify := &cobra.Command{
		Use:   "modify <table>",
		Short: "Change the entry limit or the locked flag of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &tablepb.ModifyTableRequest{}
			if cmd.Flags().Changed("limit") {
				req.Limit = &tableModifyArgs.Limit
			}
			if cmd.Flags().Changed("locked") {
				req.Locked = &tableModifyArgs.Locked
			}
			return runTableModify(args[0], req)
		},
	}
	modify.Flags().Uint32Var(&tableModifyArgs.Limit, "limit", 0, "Maximum number of entries, unbounded when zero")
	modify.Flags().BoolVar(&tableModifyArgs.Locked, "locked", false, "Reject entry changes")

	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "destroy <table>",
			Short: "Destroy an unreferenced table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTableAction(args[0], func(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector) error {
					_, err := call(ctx, func(ctx context.Context) (*tablepb.DestroyTableResponse, error) {
						return client.DestroyTable(ctx, &tablepb.DestroyTableRequest{Table: sel})
					})
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "flush <table>",
			Short: "Remove every entry of a table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTableAction(args[0], func(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector) error {
					_, err := call(ctx, func(ctx context.Context) (*tablepb.FlushTableResponse, error) {
						return client.FlushTable(ctx, &tablepb.FlushTableRequest{Table: sel})
					})
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "swap <table> <table>",
			Short: "Atomically exchange the contents of two tables",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTableSwap(args[0], args[1])
			},
		},
		modify,
		&cobra.Command{
			Use:   "info <table>",
			Short: "Show a single table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTableInfo(args[0])
			},
		},
		&cobra.Command{
			Use:   "list [pattern]",
			Short: "List tables, optionally filtered by a name glob",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pattern := ""
				if len(args) > 0 {
					pattern = args[0]
				}
				return runTableList(pattern)
			},
		},
	)

	return cmd
}

func runTableAction(
	name string,
	fn func(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector) error,
) error {
	sel, err := parseSelector(name)
	if err != nil {
		return err
	}

	return withClient(func(ctx context.Context, client tablepb.TableServiceClient) error {
		return fn(ctx, client, sel)
	})
}

func runTableCreate(name string) error {
	req := &tablepb.CreateTableRequest{
		Set:       clientArgs.Set,
		Name:      name,
		Type:      tableCreateArgs.Type,
		ValueType: tableCreateArgs.ValueType,
		Algorithm: tableCreateArgs.Algorithm,
		Limit:     tableCreateArgs.Limit,
		FlowMask:  tableCreateArgs.FlowMask,
	}

	return withClient(func(ctx context.Context, client tablepb.TableServiceClient) error {
		resp, err := call(ctx, func(ctx context.Context) (*tablepb.CreateTableResponse, error) {
			return client.CreateTable(ctx, req)
		})
		if err != nil {
			return fmt.Errorf("failed to create table %q: %w", name, err)
		}

		fmt.Printf("created table %q with index %d\n", name, resp.ID)
		return nil
	})
}

func runTableSwap(a string, b string) error {
	selA, err := parseSelector(a)
	if err != nil {
		return err
	}
	selB, err := parseSelector(b)
	if err != nil {
		return err
	}

	return withClient(func(ctx context.Context, client tablepb.TableServiceClient) error {
		_, err := call(ctx, func(ctx context.Context) (*tablepb.SwapTablesResponse, error) {
			return client.SwapTables(ctx, &tablepb.SwapTablesRequest{A: selA, B: selB})
		})
		return err
	})
}

func runTableModify(name string, req *tablepb.ModifyTableRequest) error {
	if req.Limit == nil && req.Locked == nil {
		return fmt.Errorf("nothing to modify: set --limit or --locked")
	}

	return runTableAction(name, func(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector) error {
		req.Table = sel
		_, err := call(ctx, func(ctx context.Context) (*tablepb.ModifyTableResponse, error) {
			return client.ModifyTable(ctx, req)
		})
		return err
	})
}

func runTableInfo(name string) error {
	return runTableAction(name, func(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector) error {
		resp, err := call(ctx, func(ctx context.Context) (*tablepb.TableInfoResponse, error) {
			return client.TableInfo(ctx, &tablepb.TableInfoRequest{Table: sel})
		})
		if err != nil {
			return err
		}

		printTables([]*tablepb.TableSummary{resp.Table})
		return nil
	})
}

func runTableList(pattern string) error {
	return withClient(func(ctx context.Context, client tablepb.TableServiceClient) error {
		resp, err := call(ctx, func(ctx context.Context) (*tablepb.ListTablesResponse, error) {
			return client.ListTables(ctx, &tablepb.ListTablesRequest{Pattern: pattern})
		})
		if err != nil {
			return err
		}

		printTables(resp.Tables)
		return nil
	})
}

func printTables(summaries []*tablepb.TableSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tSET\tNAME\tTYPE\tVALUE\tALGO\tCOUNT\tLIMIT\tREFS\tFLAGS")
	for _, s := range summaries {
		limit := "-"
		if s.Limit != 0 {
			limit = strconv.FormatUint(uint64(s.Limit), 10)
		}

		flags := s.FlowMask
		if s.Locked {
			if flags != "" {
				flags += " "
			}
			flags += "locked"
		}
		if flags == "" {
			flags = "-"
		}

		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			s.ID, s.Set, s.Name, s.Type, s.ValueType, s.Config, s.Count, limit, s.RefCount, flags)
	}
}
