package tablepb

// TableSelector addresses a table either by name within a set or, when the
// name is empty, by its index.
type TableSelector struct {
	ID   uint32 `json:"id,omitempty"`
	Set  uint32 `json:"set,omitempty"`
	Name string `json:"name,omitempty"`
}

// ByName returns a selector addressing a table by name.
func ByName(set uint32, name string) *TableSelector {
	return &TableSelector{Set: set, Name: name}
}

// ByID returns a selector addressing a table by index.
func ByID(id uint32) *TableSelector {
	return &TableSelector{ID: id}
}

// TableSummary describes a single table.
type TableSummary struct {
	ID        uint32 `json:"id"`
	Set       uint32 `json:"set"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ValueType string `json:"value_type"`
	FlowMask  string `json:"flow_mask,omitempty"`
	Algorithm string `json:"algorithm"`
	Config    string `json:"config"`
	Count     uint32 `json:"count"`
	Limit     uint32 `json:"limit"`
	RefCount  int32  `json:"refcount"`
	Locked    bool   `json:"locked,omitempty"`
}

// TableEntry is a single entry in its text form.
type TableEntry struct {
	Key   string `json:"key"`
	Value uint32 `json:"value"`
}

// AlgorithmSummary describes a registered table algorithm.
type AlgorithmSummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Default  bool   `json:"default,omitempty"`
	RefCount uint32 `json:"refcount"`
}

type CreateTableRequest struct {
	Set       uint32 `json:"set,omitempty"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ValueType string `json:"value_type,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
	Limit     uint32 `json:"limit,omitempty"`
	FlowMask  string `json:"flow_mask,omitempty"`
}

type CreateTableResponse struct {
	ID uint32 `json:"id"`
}

type DestroyTableRequest struct {
	Table *TableSelector `json:"table"`
}

type DestroyTableResponse struct{}

type FlushTableRequest struct {
	Table *TableSelector `json:"table"`
}

type FlushTableResponse struct{}

type SwapTablesRequest struct {
	A *TableSelector `json:"a"`
	B *TableSelector `json:"b"`
}

type SwapTablesResponse struct{}

// ModifyTableRequest changes mutable table parameters. Omitted fields are
// left unchanged.
type ModifyTableRequest struct {
	Table  *TableSelector `json:"table"`
	Limit  *uint32        `json:"limit,omitempty"`
	Locked *bool          `json:"locked,omitempty"`
}

type ModifyTableResponse struct{}

type TableInfoRequest struct {
	Table *TableSelector `json:"table"`
}

type TableInfoResponse struct {
	Table *TableSummary `json:"table"`
}

type ListTablesRequest struct {
	// Pattern is a glob the table names are matched against.
	Pattern string `json:"pattern,omitempty"`
}

type ListTablesResponse struct {
	Tables []*TableSummary `json:"tables"`
}

// AddEntryRequest adds or updates a table entry.
//
// Type is required only for legacy auto-creation of numerically named
// tables (Compat); otherwise the table key type is used.
type AddEntryRequest struct {
	Table   *TableSelector `json:"table"`
	Type    string         `json:"type,omitempty"`
	Key     string         `json:"key"`
	Value   uint32         `json:"value"`
	Update  bool           `json:"update,omitempty"`
	DontAdd bool           `json:"dont_add,omitempty"`
	Compat  bool           `json:"compat,omitempty"`
}

type AddEntryResponse struct {
	Added int32 `json:"added"`
}

type DelEntryRequest struct {
	Table *TableSelector `json:"table"`
	Key   string         `json:"key"`
}

type DelEntryResponse struct {
	Deleted int32 `json:"deleted"`
}

type FindEntryRequest struct {
	Table *TableSelector `json:"table"`
	Key   string         `json:"key"`
}

type FindEntryResponse struct {
	Found bool        `json:"found"`
	Entry *TableEntry `json:"entry,omitempty"`
}

// DumpTableRequest exports a table into a buffer of at most BufferSize
// bytes.
type DumpTableRequest struct {
	Table      *TableSelector `json:"table"`
	BufferSize uint64         `json:"buffer_size"`
}

// DumpTableResponse carries the exported table image.
type DumpTableResponse struct {
	Data []byte `json:"data"`
}

type ResizeRegistryRequest struct {
	Size uint32 `json:"size"`
}

type ResizeRegistryResponse struct {
	Size uint32 `json:"size"`
}

type ListAlgorithmsRequest struct{}

type ListAlgorithmsResponse struct {
	Algorithms []*AlgorithmSummary `json:"algorithms"`
}

// ClassifyRule looks a packet field up in a table.
type ClassifyRule struct {
	Table *TableSelector `json:"table"`
	// Field is one of "src-ip", "dst-ip", "proto", "src-port", "dst-port",
	// "in-iface" or "flow".
	Field string `json:"field"`
}

// ClassifyPacketRequest evaluates an ordered rule list against an ethernet
// frame, as the hot path would.
type ClassifyPacketRequest struct {
	Rules []*ClassifyRule `json:"rules"`
	Frame []byte          `json:"frame"`
	// InIface is the index of the interface the frame was received on.
	InIface int32 `json:"in_iface,omitempty"`
}

// ClassifyPacketResponse reports the first matched rule.
type ClassifyPacketResponse struct {
	Matched bool   `json:"matched"`
	Rule    int32  `json:"rule"`
	Table   uint32 `json:"table"`
	Value   uint32 `json:"value"`
}

type SetLogLevelRequest struct {
	// Level is one of "debug", "info", "warn" or "error".
	Level string `json:"level"`
}

type SetLogLevelResponse struct{}
