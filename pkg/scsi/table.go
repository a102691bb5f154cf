package scsi

import (
	"encoding/binary"

	"github.com/mscrnt/drivecheck/pkg/structure"
)

// Attribute is one row of the ATA SMART attribute table.
type Attribute struct {
	ID        uint8
	Flags     uint16
	Current   uint8
	Worst     uint8
	Threshold uint8
	Raw       [6]byte
}

// RawValue returns the raw bytes as a little-endian 48-bit integer.
func (a Attribute) RawValue() uint64 {
	var b [8]byte
	copy(b[:], a.Raw[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Prefailure reports whether crossing the threshold predicts failure.
func (a Attribute) Prefailure() bool {
	return a.Flags&0x1 != 0
}

// Failing reports whether the normalized value has reached a non-zero
// threshold.
func (a Attribute) Failing() bool {
	return a.Threshold != 0 && a.Current <= a.Threshold
}

// AttributeTable is an ordered, ID-keyed view of a SMART attribute page.
type AttributeTable struct {
	entries []Attribute
	index   map[uint8]int
}

// NewAttributeTable builds a table from a SmartData page and an optional
// SmartThresholds page. Empty slots (ID 0) are skipped and the first
// occurrence of a repeated ID wins.
func NewAttributeTable(data, thresholds *structure.Decoded) *AttributeTable {
	limits := make(map[uint8]uint8)
	if thresholds != nil {
		for _, e := range thresholds.Array("thresholds") {
			id := uint8(e.Uint("id"))
			if _, seen := limits[id]; id != 0 && !seen {
				limits[id] = uint8(e.Uint("threshold"))
			}
		}
	}

	t := &AttributeTable{index: make(map[uint8]int)}
	for _, e := range data.Array("attributes") {
		id := uint8(e.Uint("id"))
		if id == 0 {
			continue
		}
		if _, dup := t.index[id]; dup {
			continue
		}
		a := Attribute{
			ID:        id,
			Flags:     uint16(e.Uint("flags")),
			Current:   uint8(e.Uint("current")),
			Worst:     uint8(e.Uint("worst")),
			Threshold: limits[id],
		}
		copy(a.Raw[:], e.Bytes("raw"))
		t.index[id] = len(t.entries)
		t.entries = append(t.entries, a)
	}
	return t
}

// Get looks up an attribute by ID.
func (t *AttributeTable) Get(id uint8) (Attribute, bool) {
	i, ok := t.index[id]
	if !ok {
		return Attribute{}, false
	}
	return t.entries[i], true
}

// Entries returns the attributes in table order.
func (t *AttributeTable) Entries() []Attribute {
	out := make([]Attribute, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of attributes.
func (t *AttributeTable) Len() int {
	return len(t.entries)
}
