package tablepb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified name of the table service.
const ServiceName = "tablepb.TableService"

// TableServiceServer is the server API of the table service.
type TableServiceServer interface {
	CreateTable(context.Context, *CreateTableRequest) (*CreateTableResponse, error)
	DestroyTable(context.Context, *DestroyTableRequest) (*DestroyTableResponse, error)
	FlushTable(context.Context, *FlushTableRequest) (*FlushTableResponse, error)
	SwapTables(context.Context, *SwapTablesRequest) (*SwapTablesResponse, error)
	ModifyTable(context.Context, *ModifyTableRequest) (*ModifyTableResponse, error)
	TableInfo(context.Context, *TableInfoRequest) (*TableInfoResponse, error)
	ListTables(context.Context, *ListTablesRequest) (*ListTablesResponse, error)
	AddEntry(context.Context, *AddEntryRequest) (*AddEntryResponse, error)
	DelEntry(context.Context, *DelEntryRequest) (*DelEntryResponse, error)
	FindEntry(context.Context, *FindEntryRequest) (*FindEntryResponse, error)
	DumpTable(context.Context, *DumpTableRequest) (*DumpTableResponse, error)
	ResizeRegistry(context.Context, *ResizeRegistryRequest) (*ResizeRegistryResponse, error)
	ListAlgorithms(context.Context, *ListAlgorithmsRequest) (*ListAlgorithmsResponse, error)
	ClassifyPacket(context.Context, *ClassifyPacketRequest) (*ClassifyPacketResponse, error)
	SetLogLevel(context.Context, *SetLogLevelRequest) (*SetLogLevelResponse, error)
}

// UnimplementedTableServiceServer can be embedded to have forward
// compatible implementations.
type UnimplementedTableServiceServer struct{}

func (UnimplementedTableServiceServer) CreateTable(context.Context, *CreateTableRequest) (*CreateTableResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateTable not implemented")
}

func (UnimplementedTableServiceServer) DestroyTable(context.Context, *DestroyTableRequest) (*DestroyTableResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DestroyTable not implemented")
}

func (UnimplementedTableServiceServer) FlushTable(context.Context, *FlushTableRequest) (*FlushTableResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method FlushTable not implemented")
}

func (UnimplementedTableServiceServer) SwapTables(context.Context, *SwapTablesRequest) (*SwapTablesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SwapTables not implemented")
}

func (UnimplementedTableServiceServer) ModifyTable(context.Context, *ModifyTableRequest) (*ModifyTableResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ModifyTable not implemented")
}

func (UnimplementedTableServiceServer) TableInfo(context.Context, *TableInfoRequest) (*TableInfoResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method TableInfo not implemented")
}

func (UnimplementedTableServiceServer) ListTables(context.Context, *ListTablesRequest) (*ListTablesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListTables not implemented")
}

func (UnimplementedTableServiceServer) AddEntry(context.Context, *AddEntryRequest) (*AddEntryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AddEntry not implemented")
}

func (UnimplementedTableServiceServer) DelEntry(context.Context, *DelEntryRequest) (*DelEntryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DelEntry not implemented")
}

func (UnimplementedTableServiceServer) FindEntry(context.Context, *FindEntryRequest) (*FindEntryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method FindEntry not implemented")
}

func (UnimplementedTableServiceServer) DumpTable(context.Context, *DumpTableRequest) (*DumpTableResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DumpTable not implemented")
}

func (UnimplementedTableServiceServer) ResizeRegistry(context.Context, *ResizeRegistryRequest) (*ResizeRegistryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ResizeRegistry not implemented")
}

func (UnimplementedTableServiceServer) ListAlgorithms(context.Context, *ListAlgorithmsRequest) (*ListAlgorithmsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAlgorithms not implemented")
}

func (UnimplementedTableServiceServer) ClassifyPacket(context.Context, *ClassifyPacketRequest) (*ClassifyPacketResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ClassifyPacket not implemented")
}

func (UnimplementedTableServiceServer) SetLogLevel(context.Context, *SetLogLevelRequest) (*SetLogLevelResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetLogLevel not implemented")
}

// RegisterTableServiceServer registers the table service implementation on
// the gRPC server.
func RegisterTableServiceServer(s grpc.ServiceRegistrar, srv TableServiceServer) {
	s.RegisterService(&TableService_ServiceDesc, srv)
}

// TableService_ServiceDesc is the grpc.ServiceDesc of the table service.
var TableService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TableServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateTable", TableServiceServer.CreateTable),
		unaryMethod("DestroyTable", TableServiceServer.DestroyTable),
		unaryMethod("FlushTable", TableServiceServer.FlushTable),
		unaryMethod("SwapTables", TableServiceServer.SwapTables),
		unaryMethod("ModifyTable", TableServiceServer.ModifyTable),
		unaryMethod("TableInfo", TableServiceServer.TableInfo),
		unaryMethod("ListTables", TableServiceServer.ListTables),
		unaryMethod("AddEntry", TableServiceServer.AddEntry),
		unaryMethod("DelEntry", TableServiceServer.DelEntry),
		unaryMethod("FindEntry", TableServiceServer.FindEntry),
		unaryMethod("DumpTable", TableServiceServer.DumpTable),
		unaryMethod("ResizeRegistry", TableServiceServer.ResizeRegistry),
		unaryMethod("ListAlgorithms", TableServiceServer.ListAlgorithms),
		unaryMethod("ClassifyPacket", TableServiceServer.ClassifyPacket),
		unaryMethod("SetLogLevel", TableServiceServer.SetLogLevel),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tablepb/table.json",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryMethod[Req, Resp any](
	method string,
	call func(TableServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	handler := func(
		srv any,
		ctx context.Context,
		dec func(any) error,
		interceptor grpc.UnaryServerInterceptor,
	) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TableServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(TableServiceServer), ctx, req.(*Req))
		})
	}

	return grpc.MethodDesc{
		MethodName: method,
		Handler:    handler,
	}
}
