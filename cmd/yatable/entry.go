package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/yanet-platform/yatable/controlplane"
	"github.com/yanet-platform/yatable/controlplane/tablepb"
	"github.com/yanet-platform/yatable/tables"
)

var entryAddArgs struct {
	Type    string
	Update  bool
	DontAdd bool
	Compat  bool
}

var entryDumpArgs struct {
	Buffer datasize.ByteSize
}

// byteSizeValue adapts datasize.ByteSize to pflag.Value.
type byteSizeValue struct {
	v *datasize.ByteSize
}

func (m byteSizeValue) String() string {
	if m.v == nil {
		return "0B"
	}
	return m.v.String()
}

func (m byteSizeValue) Set(s string) error {
	return m.v.UnmarshalText([]byte(s))
}

func (m byteSizeValue) Type() string {
	return "bytes"
}

// maxDumpAttempts bounds the buffer growth retries of a dump of a table
// that keeps growing.
const maxDumpAttempts = 3

func newEntryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Manage table entries",
	}
	addClientFlags(cmd)

	add := &cobra.Command{
		Use:   "add <table> <key> <value>",
		Short: "Add an entry",
		Example: `  yatable entry add blocklist 10.0.0.0/8 1
  yatable entry add dns udp,0.0.0.0:0,198.51.100.1:53 7
  yatable entry add 42 192.0.2.0/24 1 --compat --type addr`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntryAdd(args[0], args[1], args[2])
		},
	}
	add.Flags().StringVarP(&entryAddArgs.Type, "type", "t", "", "Key type, required to auto-create numbered tables")
	add.Flags().BoolVarP(&entryAddArgs.Update, "update", "u", false, "Replace the value of an existing key")
	add.Flags().BoolVar(&entryAddArgs.DontAdd, "dont-add", false, "Only update existing keys")
	add.Flags().BoolVar(&entryAddArgs.Compat, "compat", false, "Create a missing numbered table")

	entryDumpArgs.Buffer = 64 * datasize.KB
	dump := &cobra.Command{
		Use:   "dump <table>",
		Short: "Print every entry of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntryDump(args[0])
		},
	}
	dump.Flags().Var(byteSizeValue{&entryDumpArgs.Buffer}, "buffer", "Initial dump buffer size")

	cmd.AddCommand(
		add,
		&cobra.Command{
			Use:   "del <table> <key>",
			Short: "Delete an entry",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runEntryDel(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "find <table> <key>",
			Short: "Show the entry stored under the exact key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runEntryFind(args[0], args[1])
			},
		},
		dump,
	)

	return cmd
}

func runEntryAdd(name string, key string, value string) error {
	v, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", value, err)
	}

	return runTableAction(name, func(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector) error {
		req := &tablepb.AddEntryRequest{
			Table:   sel,
			Type:    entryAddArgs.Type,
			Key:     key,
			Value:   uint32(v),
			Update:  entryAddArgs.Update,
			DontAdd: entryAddArgs.DontAdd,
			Compat:  entryAddArgs.Compat,
		}
		resp, err := call(ctx, func(ctx context.Context) (*tablepb.AddEntryResponse, error) {
			return client.AddEntry(ctx, req)
		})
		if err != nil {
			return fmt.Errorf("failed to add %q: %w", key, err)
		}

		if resp.Added == 0 {
			fmt.Printf("updated %s\n", key)
		} else {
			fmt.Printf("added %s\n", key)
		}
		return nil
	})
}

func runEntryDel(name string, key string) error {
	return runTableAction(name, func(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector) error {
		_, err := call(ctx, func(ctx context.Context) (*tablepb.DelEntryResponse, error) {
			return client.DelEntry(ctx, &tablepb.DelEntryRequest{Table: sel, Key: key})
		})
		if err != nil {
			return fmt.Errorf("failed to delete %q: %w", key, err)
		}

		fmt.Printf("deleted %s\n", key)
		return nil
	})
}

func runEntryFind(name string, key string) error {
	return runTableAction(name, func(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector) error {
		resp, err := call(ctx, func(ctx context.Context) (*tablepb.FindEntryResponse, error) {
			return client.FindEntry(ctx, &tablepb.FindEntryRequest{Table: sel, Key: key})
		})
		if err != nil {
			return err
		}
		if !resp.Found {
			return fmt.Errorf("%q not found", key)
		}

		fmt.Printf("%s %d\n", resp.Entry.Key, resp.Entry.Value)
		return nil
	})
}

// dumpTable requests the table image, growing the buffer to the size the
// server reports as required.
func dumpTable(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector, size uint64) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		resp, err := call(ctx, func(ctx context.Context) (*tablepb.DumpTableResponse, error) {
			return client.DumpTable(ctx, &tablepb.DumpTableRequest{Table: sel, BufferSize: size})
		})
		if err == nil {
			return resp.Data, nil
		}

		required, ok := controlplane.RequiredBufferSize(err)
		if !ok || required <= size || attempt+1 >= maxDumpAttempts {
			return nil, err
		}
		size = required
	}
}

func runEntryDump(name string) error {
	return runTableAction(name, func(ctx context.Context, client tablepb.TableServiceClient, sel *tablepb.TableSelector) error {
		buf, err := dumpTable(ctx, client, sel, entryDumpArgs.Buffer.Bytes())
		if err != nil {
			return fmt.Errorf("failed to dump table: %w", err)
		}

		hdr, entries, err := tables.DecodeExport(buf)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()

		fmt.Fprintf(w, "# table %d, set %d, %s keys, %d entries\n", hdr.ID, hdr.Set, hdr.Type, hdr.Count)
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\n", tables.FormatKey(hdr.Type, e.Key, e.MaskLen), e.Value)
		}
		return nil
	})
}
