package tables

import (
	"encoding/binary"
	"fmt"
)

// Export buffer layout.
//
// The header is followed by fixed-size entry records; all integers are in
// network byte order.
const (
	// ExportHeaderSize is the size of the export header:
	// kidx(2) type(1) value type(1) flow mask(1) locked(1) reserved(2)
	// set(4) count(4) limit(4) entry size(4).
	ExportHeaderSize = 24
	// ExportEntrySize is the size of a single entry record:
	// key(38) key length(1) mask length(1) value(4) reserved(4).
	ExportEntrySize = 48

	exportKeyCap = FlowKeySize
)

// ExportHeader is the decoded export header.
type ExportHeader struct {
	ID        TableID
	Type      KeyType
	ValueType ValueType
	FlowMask  FlowMask
	Locked    bool
	Set       uint32
	Count     uint32
	Limit     uint32
}

// ExportSize returns the buffer size required to export n entries.
func ExportSize(n int) int {
	return ExportHeaderSize + n*ExportEntrySize
}

func encodeExport(s Summary, entries []Entry) []byte {
	buf := make([]byte, ExportSize(len(entries)))

	binary.BigEndian.PutUint16(buf[0:], uint16(s.ID))
	buf[2] = byte(s.Type)
	buf[3] = byte(s.ValueType)
	buf[4] = byte(s.FlowMask)
	if s.Locked {
		buf[5] = 1
	}
	binary.BigEndian.PutUint32(buf[8:], s.Set)
	binary.BigEndian.PutUint32(buf[12:], uint32(len(entries)))
	binary.BigEndian.PutUint32(buf[16:], s.Limit)
	binary.BigEndian.PutUint32(buf[20:], ExportEntrySize)

	for idx, e := range entries {
		rec := buf[ExportHeaderSize+idx*ExportEntrySize:]
		copy(rec[:exportKeyCap], e.Key)
		rec[exportKeyCap] = byte(len(e.Key))
		rec[exportKeyCap+1] = e.MaskLen
		binary.BigEndian.PutUint32(rec[exportKeyCap+2:], uint32(e.Value))
	}

	return buf
}

// DecodeExport parses a buffer produced by ExportTable.
func DecodeExport(buf []byte) (ExportHeader, []Entry, error) {
	if len(buf) < ExportHeaderSize {
		return ExportHeader{}, nil, fmt.Errorf("export buffer is shorter than its header: %d bytes", len(buf))
	}

	hdr := ExportHeader{
		ID:        TableID(binary.BigEndian.Uint16(buf[0:])),
		Type:      KeyType(buf[2]),
		ValueType: ValueType(buf[3]),
		FlowMask:  FlowMask(buf[4]),
		Locked:    buf[5] != 0,
		Set:       binary.BigEndian.Uint32(buf[8:]),
		Count:     binary.BigEndian.Uint32(buf[12:]),
		Limit:     binary.BigEndian.Uint32(buf[16:]),
	}

	if size := binary.BigEndian.Uint32(buf[20:]); size != ExportEntrySize {
		return ExportHeader{}, nil, fmt.Errorf("unsupported export entry size %d", size)
	}
	if required := ExportSize(int(hdr.Count)); len(buf) < required {
		return ExportHeader{}, nil, fmt.Errorf("export buffer is truncated: %d of %d bytes", len(buf), required)
	}

	entries := make([]Entry, 0, hdr.Count)
	for idx := range int(hdr.Count) {
		rec := buf[ExportHeaderSize+idx*ExportEntrySize:]
		keyLen := int(rec[exportKeyCap])
		if keyLen > exportKeyCap {
			return ExportHeader{}, nil, fmt.Errorf("entry %d key length %d is out of range", idx, keyLen)
		}

		entries = append(entries, Entry{
			Key:     append([]byte(nil), rec[:keyLen]...),
			MaskLen: rec[exportKeyCap+1],
			Value:   Value(binary.BigEndian.Uint32(rec[exportKeyCap+2:])),
		})
	}

	return hdr, entries, nil
}
