package controlplane

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yanet-platform/yatable/classify"
	"github.com/yanet-platform/yatable/controlplane/tablepb"
	"github.com/yanet-platform/yatable/tables"
)

// TableService exposes the table registry over gRPC.
type TableService struct {
	tablepb.UnimplementedTableServiceServer

	registry   *tables.Registry
	dumpBuffer uint64
	ifaces     classify.IfaceResolver
	atom       *zap.AtomicLevel
	log        *zap.SugaredLogger
}

// NewTableService creates a new TableService.
//
// Dumps larger than dumpBuffer bytes are rejected regardless of the buffer
// size requested. Interface names of classified packets are resolved
// through ifaces. A nil atom disables runtime log level changes.
func NewTableService(
	registry *tables.Registry,
	dumpBuffer uint64,
	ifaces classify.IfaceResolver,
	atom *zap.AtomicLevel,
	log *zap.SugaredLogger,
) *TableService {
	return &TableService{
		registry:   registry,
		dumpBuffer: dumpBuffer,
		ifaces:     ifaces,
		atom:       atom,
		log:        log,
	}
}

func selector(sel *tablepb.TableSelector) (tables.Selector, error) {
	if sel == nil {
		return tables.Selector{}, status.Error(codes.InvalidArgument, "table selector is required")
	}
	if sel.Name != "" {
		return tables.ByName(sel.Set, sel.Name), nil
	}
	if sel.ID >= tables.MaxTables {
		return tables.Selector{}, status.Errorf(codes.InvalidArgument, "table index %d is out of range", sel.ID)
	}

	return tables.ByID(tables.TableID(sel.ID)), nil
}

func summary(s tables.Summary) *tablepb.TableSummary {
	out := &tablepb.TableSummary{
		ID:        uint32(s.ID),
		Set:       s.Set,
		Name:      s.Name,
		Type:      s.Type.String(),
		ValueType: s.ValueType.String(),
		Algorithm: s.Algorithm,
		Config:    s.Config,
		Count:     s.Count,
		Limit:     s.Limit,
		RefCount:  s.RefCount,
		Locked:    s.Locked,
	}
	if s.Type == tables.KeyTypeFlow {
		out.FlowMask = s.FlowMask.String()
	}

	return out
}

func (m *TableService) CreateTable(
	ctx context.Context,
	req *tablepb.CreateTableRequest,
) (*tablepb.CreateTableResponse, error) {
	cfg := TableConfig{
		Name:      req.Name,
		Set:       req.Set,
		Type:      req.Type,
		ValueType: req.ValueType,
		Algorithm: req.Algorithm,
		Limit:     req.Limit,
		FlowMask:  req.FlowMask,
	}
	spec, err := cfg.Spec()
	if err != nil {
		return nil, toStatus(err)
	}

	id, err := m.registry.Create(spec)
	if err != nil {
		return nil, toStatus(err)
	}

	return &tablepb.CreateTableResponse{ID: uint32(id)}, nil
}

func (m *TableService) DestroyTable(
	ctx context.Context,
	req *tablepb.DestroyTableRequest,
) (*tablepb.DestroyTableResponse, error) {
	sel, err := selector(req.Table)
	if err != nil {
		return nil, err
	}
	if err := m.registry.Destroy(sel); err != nil {
		return nil, toStatus(err)
	}

	return &tablepb.DestroyTableResponse{}, nil
}

func (m *TableService) FlushTable(
	ctx context.Context,
	req *tablepb.FlushTableRequest,
) (*tablepb.FlushTableResponse, error) {
	sel, err := selector(req.Table)
	if err != nil {
		return nil, err
	}
	if err := m.registry.Flush(sel); err != nil {
		return nil, toStatus(err)
	}

	return &tablepb.FlushTableResponse{}, nil
}

func (m *TableService) SwapTables(
	ctx context.Context,
	req *tablepb.SwapTablesRequest,
) (*tablepb.SwapTablesResponse, error) {
	a, err := selector(req.A)
	if err != nil {
		return nil, err
	}
	b, err := selector(req.B)
	if err != nil {
		return nil, err
	}
	if err := m.registry.Swap(a, b); err != nil {
		return nil, toStatus(err)
	}

	return &tablepb.SwapTablesResponse{}, nil
}

func (m *TableService) ModifyTable(
	ctx context.Context,
	req *tablepb.ModifyTableRequest,
) (*tablepb.ModifyTableResponse, error) {
	sel, err := selector(req.Table)
	if err != nil {
		return nil, err
	}

	update := tables.TableUpdate{
		Limit:  req.Limit,
		Locked: req.Locked,
	}
	if err := m.registry.Modify(sel, update); err != nil {
		return nil, toStatus(err)
	}

	return &tablepb.ModifyTableResponse{}, nil
}

func (m *TableService) TableInfo(
	ctx context.Context,
	req *tablepb.TableInfoRequest,
) (*tablepb.TableInfoResponse, error) {
	sel, err := selector(req.Table)
	if err != nil {
		return nil, err
	}

	s, err := m.registry.Info(sel)
	if err != nil {
		return nil, toStatus(err)
	}

	return &tablepb.TableInfoResponse{Table: summary(s)}, nil
}

func (m *TableService) ListTables(
	ctx context.Context,
	req *tablepb.ListTablesRequest,
) (*tablepb.ListTablesResponse, error) {
	summaries, err := m.registry.ListTables(req.Pattern)
	if err != nil {
		return nil, toStatus(err)
	}

	out := make([]*tablepb.TableSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, summary(s))
	}

	return &tablepb.ListTablesResponse{Tables: out}, nil
}

// entry parses the text key of a request.
//
// An explicit key type is used as is, otherwise the key is parsed
// according to the type of the addressed table.
func (m *TableService) entry(sel tables.Selector, keyType string, key string) (tables.TEntry, error) {
	entry := tables.TEntry{}

	var typ tables.KeyType
	if keyType != "" {
		v, err := tables.ParseKeyType(keyType)
		if err != nil {
			return entry, fmt.Errorf("%w: %v", tables.ErrInvalidArgument, err)
		}
		typ = v
		entry.Type = v
	} else {
		s, err := m.registry.Info(sel)
		if err != nil {
			return entry, err
		}
		typ = s.Type
	}

	k, maskLen, err := tables.ParseKey(typ, key)
	if err != nil {
		return entry, err
	}
	entry.Key = k
	entry.MaskLen = maskLen

	return entry, nil
}

func (m *TableService) AddEntry(
	ctx context.Context,
	req *tablepb.AddEntryRequest,
) (*tablepb.AddEntryResponse, error) {
	sel, err := selector(req.Table)
	if err != nil {
		return nil, err
	}

	entry, err := m.entry(sel, req.Type, req.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	entry.Value = tables.Value(req.Value)
	if req.Update {
		entry.Flags |= tables.EntryUpdate
	}
	if req.DontAdd {
		entry.Flags |= tables.EntryUpdate | tables.EntryDontAdd
	}
	if req.Compat {
		entry.Flags |= tables.EntryCompat
	}

	added, err := m.registry.AddEntry(sel, entry)
	if err != nil {
		return nil, toStatus(err)
	}

	return &tablepb.AddEntryResponse{Added: int32(added)}, nil
}

func (m *TableService) DelEntry(
	ctx context.Context,
	req *tablepb.DelEntryRequest,
) (*tablepb.DelEntryResponse, error) {
	sel, err := selector(req.Table)
	if err != nil {
		return nil, err
	}

	entry, err := m.entry(sel, "", req.Key)
	if err != nil {
		return nil, toStatus(err)
	}

	deleted, err := m.registry.DelEntry(sel, entry)
	if err != nil {
		return nil, toStatus(err)
	}

	return &tablepb.DelEntryResponse{Deleted: int32(-deleted)}, nil
}

func (m *TableService) FindEntry(
	ctx context.Context,
	req *tablepb.FindEntryRequest,
) (*tablepb.FindEntryResponse, error) {
	sel, err := selector(req.Table)
	if err != nil {
		return nil, err
	}

	s, err := m.registry.Info(sel)
	if err != nil {
		return nil, toStatus(err)
	}
	entry, err := m.entry(sel, s.Type.String(), req.Key)
	if err != nil {
		return nil, toStatus(err)
	}

	found, ok, err := m.registry.FindEntry(sel, entry)
	if err != nil {
		return nil, toStatus(err)
	}
	if !ok {
		return &tablepb.FindEntryResponse{}, nil
	}

	return &tablepb.FindEntryResponse{
		Found: true,
		Entry: &tablepb.TableEntry{
			Key:   tables.FormatKey(s.Type, found.Key, found.MaskLen),
			Value: uint32(found.Value),
		},
	}, nil
}

func (m *TableService) DumpTable(
	ctx context.Context,
	req *tablepb.DumpTableRequest,
) (*tablepb.DumpTableResponse, error) {
	sel, err := selector(req.Table)
	if err != nil {
		return nil, err
	}

	size := min(req.BufferSize, m.dumpBuffer)
	buf, err := m.registry.ExportTable(sel, int(size))
	if err != nil {
		var tooSmall *tables.BufferTooSmallError
		if errors.As(err, &tooSmall) && uint64(tooSmall.Required) > m.dumpBuffer {
			return nil, status.Errorf(codes.FailedPrecondition,
				"table image takes %d bytes, more than the %d bytes dump limit", tooSmall.Required, m.dumpBuffer)
		}
		return nil, toStatus(err)
	}

	return &tablepb.DumpTableResponse{Data: buf}, nil
}

func (m *TableService) ResizeRegistry(
	ctx context.Context,
	req *tablepb.ResizeRegistryRequest,
) (*tablepb.ResizeRegistryResponse, error) {
	if err := m.registry.Resize(req.Size); err != nil {
		return nil, toStatus(err)
	}

	return &tablepb.ResizeRegistryResponse{Size: m.registry.Size()}, nil
}

func (m *TableService) ListAlgorithms(
	ctx context.Context,
	req *tablepb.ListAlgorithmsRequest,
) (*tablepb.ListAlgorithmsResponse, error) {
	algos := m.registry.ListAlgorithms()

	out := make([]*tablepb.AlgorithmSummary, 0, len(algos))
	for _, algo := range algos {
		out = append(out, &tablepb.AlgorithmSummary{
			Name:     algo.Name,
			Type:     algo.Type.String(),
			Default:  algo.Default,
			RefCount: algo.RefCount,
		})
	}

	return &tablepb.ListAlgorithmsResponse{Algorithms: out}, nil
}

// ClassifyPacket matches a frame against the rules the way a packet
// classifier pinned to the same tables would.
func (m *TableService) ClassifyPacket(
	ctx context.Context,
	req *tablepb.ClassifyPacketRequest,
) (*tablepb.ClassifyPacketResponse, error) {
	rules := make([]classify.Rule, 0, len(req.Rules))
	for idx, r := range req.Rules {
		if r == nil {
			return nil, status.Errorf(codes.InvalidArgument, "rule #%d is empty", idx)
		}
		sel, err := selector(r.Table)
		if err != nil {
			return nil, err
		}
		field, err := classify.ParseField(r.Field)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "rule #%d: %v", idx, err)
		}

		rules = append(rules, classify.Rule{Table: sel, Field: field})
	}

	classifier, err := classify.New(m.registry, rules,
		classify.WithLog(m.log),
		classify.WithIfaces(m.ifaces),
	)
	if err != nil {
		return nil, toStatus(err)
	}
	defer classifier.Close()

	match, ok, err := classifier.Classify(classify.Decode(req.Frame, int(req.InIface)))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to classify frame: %v", err)
	}
	if !ok {
		return &tablepb.ClassifyPacketResponse{}, nil
	}

	return &tablepb.ClassifyPacketResponse{
		Matched: true,
		Rule:    int32(match.Rule),
		Table:   uint32(match.Table),
		Value:   uint32(match.Value),
	}, nil
}

// SetLogLevel updates the minimum logging level.
func (m *TableService) SetLogLevel(
	ctx context.Context,
	req *tablepb.SetLogLevelRequest,
) (*tablepb.SetLogLevelResponse, error) {
	if m.atom == nil {
		return nil, status.Errorf(codes.Unimplemented, "service doesn't support setting log level dynamically")
	}

	level, err := convertLevel(req.Level)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to convert logging level: %v", err)
	}

	m.atom.SetLevel(level)
	m.log.Infof("updated log level to %q", level)

	return &tablepb.SetLogLevelResponse{}, nil
}

func convertLevel(v string) (zapcore.Level, error) {
	switch v {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InvalidLevel, fmt.Errorf("unexpected value: %q", v)
	}
}
