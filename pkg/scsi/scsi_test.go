package scsi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/drivecheck/pkg/structure"
	"github.com/mscrnt/drivecheck/pkg/transport"
)

func pad(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

func swapped(s string, n int) []byte {
	b := pad(s, n)
	for i := 0; i+1 < n; i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
	return b
}

type attr struct {
	id, current, worst, threshold uint8
	raw                           uint64
}

func smartPages(t *testing.T, attrs []attr, thresholdOrder []int) ([]byte, []byte) {
	t.Helper()

	data := structure.New(SmartData)
	require.NoError(t, data.Set("version", 16))
	for i, a := range attrs {
		e := structure.New(AttributeEntry)
		require.NoError(t, e.Set("id", uint64(a.id)))
		require.NoError(t, e.Set("flags", 0x0033))
		require.NoError(t, e.Set("current", uint64(a.current)))
		require.NoError(t, e.Set("worst", uint64(a.worst)))
		raw := make([]byte, 6)
		for j := range raw {
			raw[j] = byte(a.raw >> (8 * j))
		}
		require.NoError(t, e.SetBytes("raw", raw))
		require.NoError(t, data.SetElement("attributes", i, e.Decoded()))
	}

	thr := structure.New(SmartThresholds)
	if thresholdOrder == nil {
		for i := range attrs {
			thresholdOrder = append(thresholdOrder, i)
		}
	}
	for slot, i := range thresholdOrder {
		e := structure.New(ThresholdEntry)
		require.NoError(t, e.Set("id", uint64(attrs[i].id)))
		require.NoError(t, e.Set("threshold", uint64(attrs[i].threshold)))
		require.NoError(t, thr.SetElement("thresholds", slot, e.Decoded()))
	}
	return data.Bytes(), thr.Bytes()
}

func fakeDisk(t *testing.T, smart, thresholds []byte) *transport.Fake {
	t.Helper()

	inq := structure.New(InquiryData)
	require.NoError(t, inq.SetBytes("vendor", pad("ATA", 8)))
	require.NoError(t, inq.SetBytes("product", pad("Samsung SSD 860", 16)))
	require.NoError(t, inq.SetBytes("revision", pad("4B6Q", 4)))

	id := structure.New(IdentifyData)
	require.NoError(t, id.SetBytes("model", swapped("Samsung SSD 860 EVO 500GB", 40)))
	require.NoError(t, id.SetBytes("serial", swapped("S3Z1NB0K123456A", 20)))
	require.NoError(t, id.SetBytes("firmware", swapped("RVT04B6Q", 8)))
	require.NoError(t, id.Set("lba48_sectors", 976773168))

	vpd := structure.New(SerialPage)
	require.NoError(t, vpd.Set("page_code", PageUnitSerial))
	require.NoError(t, vpd.SetBytes("page_length", []byte{0, 8}))
	require.NoError(t, vpd.SetBytes("serial", []byte("  ZA1234XXXXXXXX")))

	return &transport.Fake{Class: transport.ClassSCSI, Respond: func(req transport.Request) ([]byte, error) {
		cdb := req.Command
		switch {
		case cdb[0] == OpInquiry && cdb[1] == 1:
			return vpd.Bytes(), nil
		case cdb[0] == OpInquiry:
			return inq.Bytes(), nil
		case cdb[0] == OpATAPassThrough16 && cdb[14] == ATAIdentifyDevice:
			return id.Bytes(), nil
		case cdb[0] == OpATAPassThrough16 && cdb[4] == SmartReadData:
			return smart, nil
		case cdb[0] == OpATAPassThrough16 && cdb[4] == SmartReadThresholds:
			return thresholds, nil
		}
		return nil, &transport.Error{Kind: transport.NotSupported, Op: "send"}
	}}
}

func TestCommandBlocks(t *testing.T) {
	assert.Equal(t, []byte{0x12, 0, 0, 0, 36, 0}, InquiryCDB(InquiryLen))
	assert.Equal(t, []byte{0x12, 1, 0x80, 0, 96, 0}, InquiryVPDCDB(PageUnitSerial, VPDLen))
	assert.Equal(t, []byte{0x12, 0, 0, 0x01, 0x00, 0}, InquiryCDB(256))

	assert.Equal(t,
		[]byte{0x85, 0x08, 0x0e, 0, 0, 0, 0x01, 0, 0, 0, 0, 0, 0, 0, 0xec, 0},
		IdentifyCDB())
	assert.Equal(t,
		[]byte{0x85, 0x08, 0x0e, 0, 0xd0, 0, 0x01, 0, 0, 0, 0x4f, 0, 0xc2, 0, 0xb0, 0},
		SmartCDB(SmartReadData))
	assert.Equal(t,
		[]byte{0x85, 0x08, 0x0e, 0, 0xd1, 0, 0x01, 0, 0, 0, 0x4f, 0, 0xc2, 0, 0xb0, 0},
		SmartCDB(SmartReadThresholds))
}

func TestPassThroughSectorCount(t *testing.T) {
	tests := []struct {
		name string
		cdb  []byte
	}{
		{"identify", IdentifyCDB()},
		{"smart data", SmartCDB(SmartReadData)},
		{"smart thresholds", SmartCDB(SmartReadThresholds)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Len(t, tt.cdb, 16)
			assert.Equal(t, byte(0x02), tt.cdb[2]&0x03, "T_LENGTH selects the sector count")
			assert.Equal(t, byte(1), tt.cdb[6], "one block of %d bytes", PageLen)
		})
	}
}

func TestLayoutOffsets(t *testing.T) {
	tests := []struct {
		desc  *structure.Description
		field string
		at    uint
	}{
		{InquiryData, "vendor", 8},
		{InquiryData, "product", 16},
		{InquiryData, "revision", 32},
		{IdentifyData, "serial", 20},
		{IdentifyData, "firmware", 46},
		{IdentifyData, "model", 54},
		{IdentifyData, "major_version", 160},
		{IdentifyData, "command_set_1", 164},
		{IdentifyData, "command_set_enabled_1", 170},
		{IdentifyData, "lba48_sectors", 200},
		{IdentifyData, "wwn", 216},
		{IdentifyData, "rotation_rate", 434},
		{IdentifyData, "checksum", 511},
		{SmartData, "attributes", 2},
		{SmartData, "offline_collection_status", 362},
		{SmartData, "smart_capability", 368},
		{SmartData, "checksum", 511},
		{SmartThresholds, "checksum", 511},
	}

	for _, tt := range tests {
		t.Run(tt.desc.Name()+"."+tt.field, func(t *testing.T) {
			off, ok := tt.desc.Offset(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.at*8, off)
		})
	}
}

func TestInquiry(t *testing.T) {
	f := fakeDisk(t, nil, nil)
	a := New(f)

	d, err := a.Inquiry()
	require.NoError(t, err)
	assert.Equal(t, "ATA Samsung SSD 860", InquiryModel(d))
	assert.Equal(t, "4B6Q", d.ASCII("revision"))
	assert.Equal(t, uint64(0), d.Uint("peripheral_device_type"))

	reqs := f.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, transport.SCSI, reqs[0].Protocol)
	assert.Equal(t, InquiryLen, reqs[0].Length)
}

func TestUnitSerialHonoursPageLength(t *testing.T) {
	a := New(fakeDisk(t, nil, nil))

	serial, err := a.UnitSerial()
	require.NoError(t, err)
	assert.Equal(t, "ZA1234", serial)

	_, err = a.InquiryVPD(0x83)
	assert.Error(t, err)
}

func TestIdentify(t *testing.T) {
	a := New(fakeDisk(t, nil, nil))

	d, err := a.Identify()
	require.NoError(t, err)
	assert.Equal(t, "Samsung SSD 860 EVO 500GB", IdentityModel(d))
	assert.Equal(t, "S3Z1NB0K123456A", IdentitySerial(d))
	assert.Equal(t, "RVT04B6Q", IdentityFirmware(d))
	assert.Equal(t, uint64(976773168), d.Uint("lba48_sectors"))
	assert.False(t, d.Nested("command_set_1").Flag("smart_supported"))
}

func TestSmartTableHasThirtyOrderedEntries(t *testing.T) {
	var attrs []attr
	var order []int
	for i := 0; i < MaxAttributes; i++ {
		attrs = append(attrs, attr{id: uint8(200 - i*3), current: 100, worst: 99, threshold: uint8(i), raw: uint64(i) << 40})
		order = append(order, MaxAttributes-1-i)
	}
	smart, thr := smartPages(t, attrs, order)
	a := New(fakeDisk(t, smart, thr))

	table, err := a.SmartTable()
	require.NoError(t, err)
	require.Equal(t, MaxAttributes, table.Len())

	seen := make(map[uint8]bool)
	for i, e := range table.Entries() {
		assert.Equal(t, attrs[i].id, e.ID, "entry %d out of order", i)
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
		assert.Equal(t, attrs[i].threshold, e.Threshold)
		assert.Equal(t, uint64(i)<<40, e.RawValue())
		assert.Equal(t, uint16(0x0033), e.Flags)
		assert.True(t, e.Prefailure())
	}

	got, ok := table.Get(200)
	require.True(t, ok)
	assert.Equal(t, uint8(100), got.Current)
	_, ok = table.Get(1)
	assert.False(t, ok)
}

func TestSmartTableSkipsEmptyAndRepeatedSlots(t *testing.T) {
	attrs := []attr{
		{id: 5, current: 100, worst: 100, threshold: 10},
		{id: 0},
		{id: 194, current: 64, worst: 40, raw: 36},
		{id: 5, current: 1, worst: 1},
	}
	smart, thr := smartPages(t, attrs, nil)
	a := New(fakeDisk(t, smart, thr))

	table, err := a.SmartTable()
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	e := table.Entries()
	assert.Equal(t, uint8(5), e[0].ID)
	assert.Equal(t, uint8(100), e[0].Current)
	assert.Equal(t, uint8(10), e[0].Threshold)
	assert.Equal(t, uint8(194), e[1].ID)
	assert.Equal(t, uint64(36), e[1].RawValue())
}

func TestFailing(t *testing.T) {
	assert.True(t, Attribute{Current: 10, Threshold: 10}.Failing())
	assert.False(t, Attribute{Current: 11, Threshold: 10}.Failing())
	assert.False(t, Attribute{Current: 0, Threshold: 0}.Failing())
}

func TestTransportErrorsPropagate(t *testing.T) {
	busy := &transport.Error{Kind: transport.DeviceBusy, Op: "sg_io", Status: 16}
	a := New(&transport.Fake{Respond: func(transport.Request) ([]byte, error) { return nil, busy }})

	_, err := a.SmartData()
	require.Error(t, err)
	assert.True(t, errors.Is(err, busy))
	assert.True(t, transport.IsKind(err, transport.DeviceBusy))

	_, err = a.SmartTable()
	assert.True(t, transport.IsKind(err, transport.DeviceBusy))
}

func TestVerifyChecksum(t *testing.T) {
	page := make([]byte, PageLen)
	assert.True(t, VerifyChecksum(page))

	page[0] = 0x10
	page[100] = 0x20
	assert.False(t, VerifyChecksum(page))
	page[511] = 0xd0
	assert.True(t, VerifyChecksum(page))

	assert.False(t, VerifyChecksum(page[:511]))
}
