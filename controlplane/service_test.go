package controlplane

import (
	"context"
	"net"
	"net/netip"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/yanet-platform/yatable/classify"
	"github.com/yanet-platform/yatable/controlplane/tablepb"
	"github.com/yanet-platform/yatable/tables"
)

type testServer struct {
	client tablepb.TableServiceClient
	server *Server
	level  zap.AtomicLevel
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	listener := bufconn.Listen(1 << 20)

	server, err := NewServer(cfg,
		WithLog(logger.Sugar()),
		WithAtomicLogLevel(&level),
		WithListener(listener),
		WithIfaces(classify.StaticIfaces{2: "eth0", 3: "eth1"}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return server.Run(ctx)
	})

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		require.NoError(t, wg.Wait())
		require.NoError(t, server.Close())
	})

	return &testServer{
		client: tablepb.NewTableServiceClient(conn),
		server: server,
		level:  level,
	}
}

func requireCode(t *testing.T, code codes.Code, err error) {
	t.Helper()

	require.Error(t, err)
	assert.Equal(t, code, status.Code(err), err.Error())
}

func TestTableService(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()
	client := ts.client

	created, err := client.CreateTable(ctx, &tablepb.CreateTableRequest{
		Name:  "blocklist",
		Type:  "addr",
		Limit: 2,
	})
	require.NoError(t, err)

	_, err = client.CreateTable(ctx, &tablepb.CreateTableRequest{Name: "blocklist", Type: "addr"})
	requireCode(t, codes.AlreadyExists, err)
	_, err = client.CreateTable(ctx, &tablepb.CreateTableRequest{Name: "macs", Type: "mac"})
	requireCode(t, codes.InvalidArgument, err)
	_, err = client.CreateTable(ctx, &tablepb.CreateTableRequest{Name: "x", Type: "addr", Algorithm: "addr:radix"})
	requireCode(t, codes.InvalidArgument, err)

	sel := tablepb.ByName(0, "blocklist")

	added, err := client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Key: "10.0.0.0/8", Value: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(1), added.Added)

	_, err = client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Key: "10.0.0.0/8", Value: 2})
	requireCode(t, codes.AlreadyExists, err)
	_, err = client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Key: "10.0.0.0/8", Value: 2, Update: true})
	require.NoError(t, err)
	_, err = client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Key: "not-an-address", Value: 2})
	requireCode(t, codes.InvalidArgument, err)

	_, err = client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Key: "2001:db8::/32", Value: 3})
	require.NoError(t, err)
	_, err = client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Key: "192.168.0.0/16", Value: 4})
	requireCode(t, codes.ResourceExhausted, err)

	found, err := client.FindEntry(ctx, &tablepb.FindEntryRequest{Table: sel, Key: "10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, &tablepb.FindEntryResponse{
		Found: true,
		Entry: &tablepb.TableEntry{Key: "10.0.0.0/8", Value: 2},
	}, found)

	found, err = client.FindEntry(ctx, &tablepb.FindEntryRequest{Table: sel, Key: "10.1.0.0/16"})
	require.NoError(t, err)
	assert.False(t, found.Found)

	// Rules address tables by index on the hot path.
	value, ok := ts.server.Registry().Lookup(tables.TableID(created.ID), []byte{10, 1, 2, 3})
	require.True(t, ok)
	assert.Equal(t, tables.Value(2), value)

	info, err := client.TableInfo(ctx, &tablepb.TableInfoRequest{Table: tablepb.ByID(created.ID)})
	require.NoError(t, err)
	assert.Equal(t, &tablepb.TableSummary{
		ID:        created.ID,
		Name:      "blocklist",
		Type:      "addr",
		ValueType: "legacy",
		Algorithm: "addr:maptrie",
		Config:    "addr:maptrie",
		Count:     2,
		Limit:     2,
	}, info.Table)

	deleted, err := client.DelEntry(ctx, &tablepb.DelEntryRequest{Table: sel, Key: "10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), deleted.Deleted)
	_, err = client.DelEntry(ctx, &tablepb.DelEntryRequest{Table: sel, Key: "10.0.0.0/8"})
	requireCode(t, codes.NotFound, err)

	_, err = client.FlushTable(ctx, &tablepb.FlushTableRequest{Table: sel})
	require.NoError(t, err)

	list, err := client.ListTables(ctx, &tablepb.ListTablesRequest{Pattern: "block*"})
	require.NoError(t, err)
	require.Len(t, list.Tables, 1)
	assert.Zero(t, list.Tables[0].Count)

	_, err = client.DestroyTable(ctx, &tablepb.DestroyTableRequest{Table: sel})
	require.NoError(t, err)
	_, err = client.TableInfo(ctx, &tablepb.TableInfoRequest{Table: sel})
	requireCode(t, codes.NotFound, err)

	_, err = client.TableInfo(ctx, &tablepb.TableInfoRequest{})
	requireCode(t, codes.InvalidArgument, err)
}

func TestTableServiceReferencedAndLocked(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()
	client := ts.client

	_, err := client.CreateTable(ctx, &tablepb.CreateTableRequest{Name: "ports", Type: "number"})
	require.NoError(t, err)
	sel := tablepb.ByName(0, "ports")

	ref, err := ts.server.Registry().Acquire(tables.ByName(0, "ports"))
	require.NoError(t, err)

	_, err = client.DestroyTable(ctx, &tablepb.DestroyTableRequest{Table: sel})
	requireCode(t, codes.FailedPrecondition, err)
	ref.Release()

	locked := true
	_, err = client.ModifyTable(ctx, &tablepb.ModifyTableRequest{Table: sel, Locked: &locked})
	require.NoError(t, err)

	_, err = client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Key: "80", Value: 1})
	requireCode(t, codes.PermissionDenied, err)
	_, err = client.DestroyTable(ctx, &tablepb.DestroyTableRequest{Table: sel})
	requireCode(t, codes.PermissionDenied, err)

	locked = false
	_, err = client.ModifyTable(ctx, &tablepb.ModifyTableRequest{Table: sel, Locked: &locked})
	require.NoError(t, err)
	_, err = client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Key: "80", Value: 1})
	require.NoError(t, err)
}

func TestTableServiceSwap(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()
	client := ts.client

	for _, name := range []string{"active", "staging"} {
		_, err := client.CreateTable(ctx, &tablepb.CreateTableRequest{Name: name, Type: "iface"})
		require.NoError(t, err)
	}
	_, err := client.CreateTable(ctx, &tablepb.CreateTableRequest{Name: "ports", Type: "number"})
	require.NoError(t, err)

	_, err = client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: tablepb.ByName(0, "staging"), Key: "eth0", Value: 7})
	require.NoError(t, err)

	_, err = client.SwapTables(ctx, &tablepb.SwapTablesRequest{A: tablepb.ByName(0, "active"), B: tablepb.ByName(0, "staging")})
	require.NoError(t, err)

	found, err := client.FindEntry(ctx, &tablepb.FindEntryRequest{Table: tablepb.ByName(0, "active"), Key: "eth0"})
	require.NoError(t, err)
	assert.True(t, found.Found)

	_, err = client.SwapTables(ctx, &tablepb.SwapTablesRequest{A: tablepb.ByName(0, "active"), B: tablepb.ByName(0, "ports")})
	requireCode(t, codes.InvalidArgument, err)
	_, err = client.SwapTables(ctx, &tablepb.SwapTablesRequest{A: tablepb.ByName(0, "active"), B: tablepb.ByName(0, "active")})
	requireCode(t, codes.FailedPrecondition, err)
}

func TestTableServiceDump(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tables = []TableConfig{
		{
			Name: "nets",
			Type: "addr",
			Entries: map[string]uint32{
				"10.0.0.0/8":     1,
				"192.168.0.0/16": 2,
			},
		},
	}
	ts := newTestServer(t, cfg)
	ctx := context.Background()

	sel := tablepb.ByName(0, "nets")
	_, err := ts.client.DumpTable(ctx, &tablepb.DumpTableRequest{Table: sel, BufferSize: tables.ExportHeaderSize})
	requireCode(t, codes.ResourceExhausted, err)

	required, ok := RequiredBufferSize(err)
	require.True(t, ok)
	assert.Equal(t, uint64(tables.ExportSize(2)), required)

	resp, err := ts.client.DumpTable(ctx, &tablepb.DumpTableRequest{Table: sel, BufferSize: required})
	require.NoError(t, err)

	hdr, entries, err := tables.DecodeExport(resp.Data)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), hdr.Count)

	got := map[string]tables.Value{}
	for _, e := range entries {
		got[tables.FormatKey(hdr.Type, e.Key, e.MaskLen)] = e.Value
	}
	assert.Equal(t, map[string]tables.Value{"10.0.0.0/8": 1, "192.168.0.0/16": 2}, got)
}

func TestTableServiceDumpLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registry.DumpBuffer = datasize.ByteSize(tables.ExportSize(1))
	cfg.Tables = []TableConfig{
		{
			Name:    "nets",
			Type:    "addr",
			Entries: map[string]uint32{"10.0.0.0/8": 1, "192.168.0.0/16": 2},
		},
	}
	ts := newTestServer(t, cfg)

	// No buffer the server accepts can hold the table.
	_, err := ts.client.DumpTable(context.Background(), &tablepb.DumpTableRequest{
		Table:      tablepb.ByName(0, "nets"),
		BufferSize: uint64(tables.ExportSize(2)),
	})
	requireCode(t, codes.FailedPrecondition, err)

	_, ok := RequiredBufferSize(err)
	assert.False(t, ok)
}

func TestTableServiceClassifyPacket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tables = []TableConfig{
		{Name: "blocklist", Type: "addr", Entries: map[string]uint32{"10.0.0.0/8": 1}},
		{Name: "uplinks", Type: "iface", Entries: map[string]uint32{"eth1": 2}},
		{Name: "ports", Type: "number", Entries: map[string]uint32{"53": 3}},
	}
	ts := newTestServer(t, cfg)
	ctx := context.Background()

	rules := []*tablepb.ClassifyRule{
		{Table: tablepb.ByName(0, "blocklist"), Field: "src-ip"},
		{Table: tablepb.ByName(0, "uplinks"), Field: "in-iface"},
		{Table: tablepb.ByName(0, "ports"), Field: "dst-port"},
	}

	frame := func(src string, dst string) []byte {
		buf, err := classify.Frame(&classify.Fields{
			Proto: 17,
			Src:   netip.MustParseAddrPort(src),
			Dst:   netip.MustParseAddrPort(dst),
		})
		require.NoError(t, err)
		return buf
	}

	tests := []struct {
		name    string
		frame   []byte
		inIface int32
		expect  *tablepb.ClassifyPacketResponse
	}{
		{
			name:   "source address",
			frame:  frame("10.1.2.3:1000", "192.0.2.1:80"),
			expect: &tablepb.ClassifyPacketResponse{Matched: true, Rule: 0, Value: 1},
		},
		{
			name:    "input interface",
			frame:   frame("192.0.2.7:1000", "192.0.2.1:80"),
			inIface: 3,
			expect:  &tablepb.ClassifyPacketResponse{Matched: true, Rule: 1, Table: 1, Value: 2},
		},
		{
			name:    "destination port",
			frame:   frame("192.0.2.7:1000", "192.0.2.1:53"),
			inIface: 2,
			expect:  &tablepb.ClassifyPacketResponse{Matched: true, Rule: 2, Table: 2, Value: 3},
		},
		{
			name:   "no match",
			frame:  frame("[2001:db8::1]:1000", "[2001:db8::2]:80"),
			expect: &tablepb.ClassifyPacketResponse{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ts.client.ClassifyPacket(ctx, &tablepb.ClassifyPacketRequest{
				Rules:   rules,
				Frame:   tt.frame,
				InIface: tt.inIface,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expect, resp)
		})
	}

	_, err := ts.client.ClassifyPacket(ctx, &tablepb.ClassifyPacketRequest{
		Rules: []*tablepb.ClassifyRule{{Table: tablepb.ByName(0, "blocklist"), Field: "vlan"}},
	})
	requireCode(t, codes.InvalidArgument, err)

	_, err = ts.client.ClassifyPacket(ctx, &tablepb.ClassifyPacketRequest{
		Rules: []*tablepb.ClassifyRule{{Table: tablepb.ByName(0, "ports"), Field: "src-ip"}},
	})
	requireCode(t, codes.InvalidArgument, err)

	_, err = ts.client.ClassifyPacket(ctx, &tablepb.ClassifyPacketRequest{
		Rules: []*tablepb.ClassifyRule{{Table: tablepb.ByName(0, "missing"), Field: "src-ip"}},
	})
	requireCode(t, codes.NotFound, err)

	// Classification releases its table references.
	info, err := ts.client.TableInfo(ctx, &tablepb.TableInfoRequest{Table: tablepb.ByName(0, "blocklist")})
	require.NoError(t, err)
	assert.Zero(t, info.Table.RefCount)
}

func TestTableServiceCompatAdd(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	sel := tablepb.ByName(0, "7")
	_, err := ts.client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Key: "10.0.0.0/8", Value: 1})
	requireCode(t, codes.NotFound, err)

	_, err = ts.client.AddEntry(ctx, &tablepb.AddEntryRequest{Table: sel, Type: "addr", Key: "10.0.0.0/8", Value: 1, Compat: true})
	require.NoError(t, err)

	info, err := ts.client.TableInfo(ctx, &tablepb.TableInfoRequest{Table: sel})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.Table.Count)
}

func TestTableServiceRegistry(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	resp, err := ts.client.ResizeRegistry(ctx, &tablepb.ResizeRegistryRequest{Size: 256})
	require.NoError(t, err)
	assert.Equal(t, uint32(256), resp.Size)

	_, err = ts.client.ResizeRegistry(ctx, &tablepb.ResizeRegistryRequest{Size: 16})
	requireCode(t, codes.FailedPrecondition, err)

	algos, err := ts.client.ListAlgorithms(ctx, &tablepb.ListAlgorithmsRequest{})
	require.NoError(t, err)
	names := []string{}
	for _, algo := range algos.Algorithms {
		names = append(names, algo.Name)
	}
	assert.Equal(t, []string{"addr:maptrie", "addr:hash", "iface:hash", "number:hash", "flow:hash"}, names)
	assert.True(t, algos.Algorithms[0].Default)
	assert.False(t, algos.Algorithms[1].Default)
}

func TestTableServiceSetLogLevel(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	_, err := ts.client.SetLogLevel(ctx, &tablepb.SetLogLevelRequest{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, ts.level.Level())

	_, err = ts.client.SetLogLevel(ctx, &tablepb.SetLogLevelRequest{Level: "verbose"})
	requireCode(t, codes.InvalidArgument, err)
}

func TestBootstrapFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tables = []TableConfig{
		{Name: "nets", Type: "addr", Entries: map[string]uint32{"10.0.0.0/40": 1}},
	}

	_, err := NewServer(cfg)
	require.ErrorIs(t, err, tables.ErrInvalidKey)
}
