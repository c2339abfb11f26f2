package tablepb

import (
	"context"

	"google.golang.org/grpc"
)

// TableServiceClient is the client API of the table service.
type TableServiceClient interface {
	CreateTable(ctx context.Context, in *CreateTableRequest, opts ...grpc.CallOption) (*CreateTableResponse, error)
	DestroyTable(ctx context.Context, in *DestroyTableRequest, opts ...grpc.CallOption) (*DestroyTableResponse, error)
	FlushTable(ctx context.Context, in *FlushTableRequest, opts ...grpc.CallOption) (*FlushTableResponse, error)
	SwapTables(ctx context.Context, in *SwapTablesRequest, opts ...grpc.CallOption) (*SwapTablesResponse, error)
	ModifyTable(ctx context.Context, in *ModifyTableRequest, opts ...grpc.CallOption) (*ModifyTableResponse, error)
	TableInfo(ctx context.Context, in *TableInfoRequest, opts ...grpc.CallOption) (*TableInfoResponse, error)
	ListTables(ctx context.Context, in *ListTablesRequest, opts ...grpc.CallOption) (*ListTablesResponse, error)
	AddEntry(ctx context.Context, in *AddEntryRequest, opts ...grpc.CallOption) (*AddEntryResponse, error)
	DelEntry(ctx context.Context, in *DelEntryRequest, opts ...grpc.CallOption) (*DelEntryResponse, error)
	FindEntry(ctx context.Context, in *FindEntryRequest, opts ...grpc.CallOption) (*FindEntryResponse, error)
	DumpTable(ctx context.Context, in *DumpTableRequest, opts ...grpc.CallOption) (*DumpTableResponse, error)
	ResizeRegistry(ctx context.Context, in *ResizeRegistryRequest, opts ...grpc.CallOption) (*ResizeRegistryResponse, error)
	ListAlgorithms(ctx context.Context, in *ListAlgorithmsRequest, opts ...grpc.CallOption) (*ListAlgorithmsResponse, error)
	ClassifyPacket(ctx context.Context, in *ClassifyPacketRequest, opts ...grpc.CallOption) (*ClassifyPacketResponse, error)
	SetLogLevel(ctx context.Context, in *SetLogLevelRequest, opts ...grpc.CallOption) (*SetLogLevelResponse, error)
}

type tableServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTableServiceClient creates a table service client on top of the
// connection. Calls are encoded with the JSON codec.
func NewTableServiceClient(cc grpc.ClientConnInterface) TableServiceClient {
	return &tableServiceClient{cc: cc}
}

func invoke[Req, Resp any](
	ctx context.Context,
	cc grpc.ClientConnInterface,
	method string,
	in *Req,
	opts []grpc.CallOption,
) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (m *tableServiceClient) CreateTable(ctx context.Context, in *CreateTableRequest, opts ...grpc.CallOption) (*CreateTableResponse, error) {
	return invoke[CreateTableRequest, CreateTableResponse](ctx, m.cc, "CreateTable", in, opts)
}

func (m *tableServiceClient) DestroyTable(ctx context.Context, in *DestroyTableRequest, opts ...grpc.CallOption) (*DestroyTableResponse, error) {
	return invoke[DestroyTableRequest, DestroyTableResponse](ctx, m.cc, "DestroyTable", in, opts)
}

func (m *tableServiceClient) FlushTable(ctx context.Context, in *FlushTableRequest, opts ...grpc.CallOption) (*FlushTableResponse, error) {
	return invoke[FlushTableRequest, FlushTableResponse](ctx, m.cc, "FlushTable", in, opts)
}

func (m *tableServiceClient) SwapTables(ctx context.Context, in *SwapTablesRequest, opts ...grpc.CallOption) (*SwapTablesResponse, error) {
	return invoke[SwapTablesRequest, SwapTablesResponse](ctx, m.cc, "SwapTables", in, opts)
}

func (m *tableServiceClient) ModifyTable(ctx context.Context, in *ModifyTableRequest, opts ...grpc.CallOption) (*ModifyTableResponse, error) {
	return invoke[ModifyTableRequest, ModifyTableResponse](ctx, m.cc, "ModifyTable", in, opts)
}

func (m *tableServiceClient) TableInfo(ctx context.Context, in *TableInfoRequest, opts ...grpc.CallOption) (*TableInfoResponse, error) {
	return invoke[TableInfoRequest, TableInfoResponse](ctx, m.cc, "TableInfo", in, opts)
}

func (m *tableServiceClient) ListTables(ctx context.Context, in *ListTablesRequest, opts ...grpc.CallOption) (*ListTablesResponse, error) {
	return invoke[ListTablesRequest, ListTablesResponse](ctx, m.cc, "ListTables", in, opts)
}

func (m *tableServiceClient) AddEntry(ctx context.Context, in *AddEntryRequest, opts ...grpc.CallOption) (*AddEntryResponse, error) {
	return invoke[AddEntryRequest, AddEntryResponse](ctx, m.cc, "AddEntry", in, opts)
}

func (m *tableServiceClient) DelEntry(ctx context.Context, in *DelEntryRequest, opts ...grpc.CallOption) (*DelEntryResponse, error) {
	return invoke[DelEntryRequest, DelEntryResponse](ctx, m.cc, "DelEntry", in, opts)
}

func (m *tableServiceClient) FindEntry(ctx context.Context, in *FindEntryRequest, opts ...grpc.CallOption) (*FindEntryResponse, error) {
	return invoke[FindEntryRequest, FindEntryResponse](ctx, m.cc, "FindEntry", in, opts)
}

func (m *tableServiceClient) DumpTable(ctx context.Context, in *DumpTableRequest, opts ...grpc.CallOption) (*DumpTableResponse, error) {
	return invoke[DumpTableRequest, DumpTableResponse](ctx, m.cc, "DumpTable", in, opts)
}

func (m *tableServiceClient) ResizeRegistry(ctx context.Context, in *ResizeRegistryRequest, opts ...grpc.CallOption) (*ResizeRegistryResponse, error) {
	return invoke[ResizeRegistryRequest, ResizeRegistryResponse](ctx, m.cc, "ResizeRegistry", in, opts)
}

func (m *tableServiceClient) ListAlgorithms(ctx context.Context, in *ListAlgorithmsRequest, opts ...grpc.CallOption) (*ListAlgorithmsResponse, error) {
	return invoke[ListAlgorithmsRequest, ListAlgorithmsResponse](ctx, m.cc, "ListAlgorithms", in, opts)
}

func (m *tableServiceClient) ClassifyPacket(ctx context.Context, in *ClassifyPacketRequest, opts ...grpc.CallOption) (*ClassifyPacketResponse, error) {
	return invoke[ClassifyPacketRequest, ClassifyPacketResponse](ctx, m.cc, "ClassifyPacket", in, opts)
}

func (m *tableServiceClient) SetLogLevel(ctx context.Context, in *SetLogLevelRequest, opts ...grpc.CallOption) (*SetLogLevelResponse, error) {
	return invoke[SetLogLevelRequest, SetLogLevelResponse](ctx, m.cc, "SetLogLevel", in, opts)
}
