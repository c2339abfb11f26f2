package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vishvananda/netlink"

	"github.com/yanet-platform/yatable/classify"
	"github.com/yanet-platform/yatable/controlplane/tablepb"
	"github.com/yanet-platform/yatable/tables"
)

var classifyArgs struct {
	Rules   []string
	InIface string
}

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <flow>",
		Short: "Show the first rule a packet of the flow matches",
		Example: `  yatable classify udp,10.0.0.1:5353,192.0.2.1:53 --rule src-ip=blocklist --rule dst-port=ports
  yatable classify tcp,[2001:db8::1]:1234,[2001:db8::2]:80 --rule in-iface=uplinks --in-iface eth0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(args[0])
		},
	}
	addClientFlags(cmd)
	cmd.Flags().StringArrayVarP(&classifyArgs.Rules, "rule", "r", nil, "Rule as <field>=<table>, evaluated in order (required)")
	cmd.Flags().StringVar(&classifyArgs.InIface, "in-iface", "", "Interface name or index the packet is received on")
	cmd.MarkFlagRequired("rule")

	return cmd
}

// parseRule parses "<field>=<table>".
func parseRule(s string) (*tablepb.ClassifyRule, error) {
	field, table, ok := strings.Cut(s, "=")
	if !ok || table == "" {
		return nil, fmt.Errorf("invalid rule %q: expected <field>=<table>", s)
	}
	if _, err := classify.ParseField(field); err != nil {
		return nil, fmt.Errorf("invalid rule %q: %w", s, err)
	}

	sel, err := parseSelector(table)
	if err != nil {
		return nil, err
	}

	return &tablepb.ClassifyRule{Table: sel, Field: field}, nil
}

// ifaceIndex resolves an interface given by name or index on this host.
func ifaceIndex(s string) (int32, error) {
	if s == "" {
		return 0, nil
	}
	if idx, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(idx), nil
	}

	link, err := netlink.LinkByName(s)
	if err != nil {
		return 0, fmt.Errorf("failed to find interface %q: %w", s, err)
	}

	return int32(link.Attrs().Index), nil
}

func flowFrame(s string) ([]byte, error) {
	key, _, err := tables.ParseKey(tables.KeyTypeFlow, s)
	if err != nil {
		return nil, err
	}
	flow, err := tables.DecodeFlowKey(key)
	if err != nil {
		return nil, err
	}

	return classify.Frame(&classify.Fields{
		Proto: flow.Proto,
		Src:   flow.Src,
		Dst:   flow.Dst,
	})
}

func runClassify(flow string) error {
	rules := make([]*tablepb.ClassifyRule, 0, len(classifyArgs.Rules))
	for _, s := range classifyArgs.Rules {
		rule, err := parseRule(s)
		if err != nil {
			return err
		}
		rules = append(rules, rule)
	}

	frame, err := flowFrame(flow)
	if err != nil {
		return fmt.Errorf("invalid flow %q: %w", flow, err)
	}
	inIface, err := ifaceIndex(classifyArgs.InIface)
	if err != nil {
		return err
	}

	return withClient(func(ctx context.Context, client tablepb.TableServiceClient) error {
		req := &tablepb.ClassifyPacketRequest{
			Rules:   rules,
			Frame:   frame,
			InIface: inIface,
		}
		resp, err := call(ctx, func(ctx context.Context) (*tablepb.ClassifyPacketResponse, error) {
			return client.ClassifyPacket(ctx, req)
		})
		if err != nil {
			return err
		}

		if !resp.Matched {
			fmt.Println("no match")
			return nil
		}
		fmt.Printf("rule #%d %s matched table %d, value %d\n",
			resp.Rule, classifyArgs.Rules[resp.Rule], resp.Table, resp.Value)
		return nil
	})
}
