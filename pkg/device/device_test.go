package device

import (
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/drivecheck/pkg/device/devicetest"
	"github.com/mscrnt/drivecheck/pkg/nvme"
	"github.com/mscrnt/drivecheck/pkg/scsi"
	"github.com/mscrnt/drivecheck/pkg/structure"
	"github.com/mscrnt/drivecheck/pkg/transport"
)

func swapped(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	for i := 0; i+1 < n; i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
	return b
}

type ataDisk struct {
	identifyFails bool
	tempAttr      uint8
}

func (a ataDisk) fake(t *testing.T) *transport.Fake {
	t.Helper()

	inq := structure.New(scsi.InquiryData)
	require.NoError(t, inq.SetBytes("vendor", []byte("SEAGATE ")))
	require.NoError(t, inq.SetBytes("product", []byte("ST4000NM0023    ")))
	require.NoError(t, inq.SetBytes("revision", []byte("GS0F")))

	vpd := structure.New(scsi.SerialPage)
	require.NoError(t, vpd.SetBytes("page_length", []byte{0, 8}))
	require.NoError(t, vpd.SetBytes("serial", []byte("Z1Z2Z3Z4")))

	id := structure.New(scsi.IdentifyData)
	require.NoError(t, id.SetBytes("model", swapped("WDC WD40EFRX-68N32N0", 40)))
	require.NoError(t, id.SetBytes("serial", swapped("WD-WCC7K0123456", 20)))
	require.NoError(t, id.SetBytes("firmware", swapped("82.00A82", 8)))

	data := structure.New(scsi.SmartData)
	thr := structure.New(scsi.SmartThresholds)
	rows := []struct{ id, current, threshold, raw0 uint8 }{
		{1, 200, 51, 0},
		{5, 200, 140, 0},
		{a.tempAttr, 110, 0, 40},
		{9, 75, 0, 12},
	}
	for i, r := range rows {
		e := structure.New(scsi.AttributeEntry)
		require.NoError(t, e.Set("id", uint64(r.id)))
		require.NoError(t, e.Set("current", uint64(r.current)))
		require.NoError(t, e.Set("worst", uint64(r.current)))
		require.NoError(t, e.SetBytes("raw", []byte{r.raw0}))
		require.NoError(t, data.SetElement("attributes", i, e.Decoded()))

		te := structure.New(scsi.ThresholdEntry)
		require.NoError(t, te.Set("id", uint64(r.id)))
		require.NoError(t, te.Set("threshold", uint64(r.threshold)))
		require.NoError(t, thr.SetElement("thresholds", i, te.Decoded()))
	}

	return &transport.Fake{Class: transport.ClassSCSI, Respond: func(req transport.Request) ([]byte, error) {
		cdb := req.Command
		switch {
		case cdb[0] == scsi.OpInquiry && cdb[1] == 1:
			return vpd.Bytes(), nil
		case cdb[0] == scsi.OpInquiry:
			return inq.Bytes(), nil
		case cdb[14] == scsi.ATAIdentifyDevice:
			if a.identifyFails {
				return nil, &transport.Error{Kind: transport.IOFailure, Op: "sg_io", Status: 0x02}
			}
			return id.Bytes(), nil
		case cdb[4] == scsi.SmartReadData:
			return data.Bytes(), nil
		case cdb[4] == scsi.SmartReadThresholds:
			return thr.Bytes(), nil
		}
		return nil, &transport.Error{Kind: transport.NotSupported, Op: "sg_io"}
	}}
}

func nvmeFake(t *testing.T) *transport.Fake {
	t.Helper()

	id := structure.New(nvme.IdentifyController)
	require.NoError(t, id.SetBytes("mn", []byte("INTEL SSDPEKNW010T8")))
	require.NoError(t, id.SetBytes("sn", []byte("BTNH12345678")))
	require.NoError(t, id.SetBytes("fr", []byte("004C")))

	log := structure.New(nvme.SmartLog)
	require.NoError(t, log.Set("composite_temperature", 318))
	require.NoError(t, log.Set("power_on_hours", 4000))

	return &transport.Fake{Class: transport.ClassNVMe, Respond: func(req transport.Request) ([]byte, error) {
		switch req.Command[0] {
		case nvme.OpIdentify:
			return id.Bytes(), nil
		case nvme.OpGetLogPage:
			return log.Bytes(), nil
		}
		return nil, &transport.Error{Kind: transport.NotSupported, Op: "nvme_admin"}
	}}
}

func TestOpenSelectsVariant(t *testing.T) {
	d, err := Open("/dev/sda", WithTransport(ataDisk{tempAttr: 194}.fake(t)))
	require.NoError(t, err)
	assert.Equal(t, SCSI, d.Variant())
	assert.Equal(t, "/dev/sda", d.Path())
	assert.Equal(t, []Operation{OpInquiry, OpIdentify, OpSmart, OpThresholds}, d.Capabilities())
	require.NoError(t, d.Close())

	d, err = Open("/dev/nvme0n1", WithTransport(nvmeFake(t)))
	require.NoError(t, err)
	assert.Equal(t, NVMe, d.Variant())
	assert.Equal(t, []Operation{OpIdentify, OpSmart}, d.Capabilities())
	require.NoError(t, d.Close())
}

func TestOpenErrors(t *testing.T) {
	t.Run("unknown device type", func(t *testing.T) {
		f := &transport.Fake{Class: transport.Unknown}
		_, err := Open("/dev/loop0", WithTransport(f))
		assert.ErrorIs(t, err, ErrUnsupportedDeviceType)
		assert.Equal(t, 1, f.Closes())
	})

	t.Run("missing path", func(t *testing.T) {
		opener := func(path string) (transport.Transport, error) {
			return nil, &os.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
		}
		_, err := Open("/dev/sdz", WithOpener(opener))
		assert.ErrorIs(t, err, ErrDeviceNotFound)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("permission denied", func(t *testing.T) {
		denied := &transport.Error{Kind: transport.PermissionDenied, Op: "open"}
		opener := func(string) (transport.Transport, error) { return nil, denied }
		_, err := Open("/dev/sda", WithOpener(opener))
		assert.ErrorIs(t, err, denied)
		assert.False(t, errors.Is(err, ErrDeviceNotFound))
	})
}

func TestNVMeThresholdsUnsupported(t *testing.T) {
	f := nvmeFake(t)
	d, err := Open("/dev/nvme0n1", WithTransport(f))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.SmartThresholds()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	var te *transport.Error
	assert.False(t, errors.As(err, &te))
	assert.Empty(t, f.Requests())

	_, err = d.Command(OpInquiry)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestAccessorsAfterClose(t *testing.T) {
	for name, f := range map[string]*transport.Fake{
		"scsi": ataDisk{tempAttr: 194}.fake(t),
		"nvme": nvmeFake(t),
	} {
		t.Run(name, func(t *testing.T) {
			d, err := Open("/dev/x", WithTransport(f))
			require.NoError(t, err)
			require.NoError(t, d.Close())
			require.NoError(t, d.Close())
			assert.Equal(t, 1, f.Closes())

			calls := map[string]func() error{
				"model":       func() error { _, err := d.Model(); return err },
				"serial":      func() error { _, err := d.Serial(); return err },
				"firmware":    func() error { _, err := d.Firmware(); return err },
				"temperature": func() error { _, err := d.Temperature(); return err },
				"smart_table": func() error { _, err := d.SmartTable(); return err },
				"thresholds":  func() error { _, err := d.SmartThresholds(); return err },
				"info":        func() error { _, err := d.Info(); return err },
			}
			for _, op := range Operations {
				op := op
				calls["command_"+string(op)] = func() error { _, err := d.Command(op); return err }
			}

			for call, fn := range calls {
				assert.ErrorIs(t, fn(), ErrDeviceClosed, call)
			}
			assert.Empty(t, f.Requests())
		})
	}
}

func TestNVMeAccessors(t *testing.T) {
	d, err := Open("/dev/nvme0n1", WithTransport(nvmeFake(t)))
	require.NoError(t, err)
	defer d.Close()

	info, err := d.Info()
	require.NoError(t, err)
	assert.Equal(t, "INTEL SSDPEKNW010T8", info.Model)
	assert.Equal(t, "BTNH12345678", info.Serial)
	assert.Equal(t, "004C", info.Firmware)
	require.NotNil(t, info.Temperature)
	assert.Equal(t, 45, *info.Temperature)

	table, err := d.SmartTable()
	require.NoError(t, err)
	assert.Nil(t, table.ATA)
	assert.Equal(t, len(table.NVMe), table.Len())
	for _, h := range table.NVMe {
		if h.Name == "power_on_hours" {
			assert.Equal(t, uint64(4000), h.Value.Uint64())
		}
	}
}

func TestATAAccessors(t *testing.T) {
	d, err := Open("/dev/sda", WithTransport(ataDisk{tempAttr: 194}.fake(t)))
	require.NoError(t, err)
	defer d.Close()

	info, err := d.Info()
	require.NoError(t, err)
	assert.Equal(t, "WDC WD40EFRX-68N32N0", info.Model)
	assert.Equal(t, "WD-WCC7K0123456", info.Serial)
	assert.Equal(t, "82.00A82", info.Firmware)
	require.NotNil(t, info.Temperature)
	assert.Equal(t, 40, *info.Temperature)

	table, err := d.SmartTable()
	require.NoError(t, err)
	require.NotNil(t, table.ATA)
	assert.Equal(t, 4, table.Len())
	a, ok := table.ATA.Get(5)
	require.True(t, ok)
	assert.Equal(t, uint8(140), a.Threshold)

	thr, err := d.SmartThresholds()
	require.NoError(t, err)
	assert.Len(t, thr.Array("thresholds"), scsi.MaxAttributes)
}

func TestATATemperatureFallback(t *testing.T) {
	d, err := Open("/dev/sdb", WithTransport(ataDisk{tempAttr: 190}.fake(t)))
	require.NoError(t, err)
	defer d.Close()

	temp, err := d.Temperature()
	require.NoError(t, err)
	assert.Equal(t, 40, temp)

	d2, err := Open("/dev/sdc", WithTransport(ataDisk{tempAttr: 12}.fake(t)))
	require.NoError(t, err)
	defer d2.Close()

	_, err = d2.Temperature()
	assert.ErrorIs(t, err, ErrNotAvailable)

	info, err := d2.Info()
	require.NoError(t, err)
	assert.Nil(t, info.Temperature)
}

func TestSCSIFallsBackToInquiry(t *testing.T) {
	d, err := Open("/dev/sdd", WithTransport(ataDisk{identifyFails: true, tempAttr: 194}.fake(t)))
	require.NoError(t, err)
	defer d.Close()

	model, err := d.Model()
	require.NoError(t, err)
	assert.Equal(t, "SEAGATE ST4000NM0023", model)

	serial, err := d.Serial()
	require.NoError(t, err)
	assert.Equal(t, "Z1Z2Z3Z4", serial)

	fw, err := d.Firmware()
	require.NoError(t, err)
	assert.Equal(t, "GS0F", fw)
}

func TestCommandDispatch(t *testing.T) {
	f := ataDisk{tempAttr: 194}.fake(t)
	d, err := Open("/dev/sda", WithTransport(f))
	require.NoError(t, err)
	defer d.Close()

	for _, op := range Operations {
		dec, err := d.Command(op)
		require.NoError(t, err, op)
		assert.NotEmpty(t, dec.Fields())
	}
	assert.Len(t, f.Requests(), len(Operations))

	_, err = ParseOperation("format")
	assert.Error(t, err)
	op, err := ParseOperation("smart")
	require.NoError(t, err)
	assert.Equal(t, OpSmart, op)
}

func TestList(t *testing.T) {
	orig := ioCounters
	defer func() { ioCounters = orig }()

	ioCounters = func(...string) (map[string]disk.IOCountersStat, error) {
		return map[string]disk.IOCountersStat{
			"sdb":       {},
			"sda":       {},
			"sda1":      {},
			"nvme0n1":   {},
			"nvme0n1p2": {},
			"loop0":     {},
			"dm-0":      {},
		}, nil
	}

	paths, err := List()
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/nvme0n1", "/dev/sda", "/dev/sdb"}, paths)

	ioCounters = func(...string) (map[string]disk.IOCountersStat, error) {
		return nil, errors.New("no /proc")
	}
	_, err = List()
	assert.Error(t, err)
}

func TestSerialWithoutIdentifySerial(t *testing.T) {
	disk := devicetest.ATADisk{
		Model:      "WDC WD10EZEX",
		Attributes: []devicetest.Attr{{ID: AttrTemperature, Current: 100, Worst: 100, Raw: 30}},
	}

	tests := []struct {
		name string
		vpd  error
	}{
		{"vpd not supported", &transport.Error{Kind: transport.NotSupported, Op: "sg_io"}},
		{"vpd check condition", &transport.Error{Kind: transport.IOFailure, Op: "sg_io", Status: 0x02}},
		{"vpd empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := disk.Transport()
			respond := f.Respond
			f.Respond = func(req transport.Request) ([]byte, error) {
				if tt.vpd != nil && req.Command[0] == scsi.OpInquiry && req.Command[1] == 1 {
					return nil, tt.vpd
				}
				return respond(req)
			}

			d, err := Open("/dev/sde", WithTransport(f))
			require.NoError(t, err)
			defer d.Close()

			serial, err := d.Serial()
			require.NoError(t, err)
			assert.Empty(t, serial)

			info, err := d.Info()
			require.NoError(t, err)
			assert.Equal(t, "WDC WD10EZEX", info.Model)
			assert.Empty(t, info.Serial)
			require.NotNil(t, info.Temperature)
			assert.Equal(t, 30, *info.Temperature)
		})
	}
}

func TestSerialVPDPermissionDenied(t *testing.T) {
	f := devicetest.ATADisk{Model: "WDC WD10EZEX"}.Transport()
	respond := f.Respond
	f.Respond = func(req transport.Request) ([]byte, error) {
		if req.Command[0] == scsi.OpInquiry && req.Command[1] == 1 {
			return nil, &transport.Error{Kind: transport.PermissionDenied, Op: "sg_io"}
		}
		return respond(req)
	}

	d, err := Open("/dev/sdf", WithTransport(f))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Serial()
	assert.True(t, transport.IsKind(err, transport.PermissionDenied))
}

func TestATADiskFixtureSerial(t *testing.T) {
	d, err := Open("/dev/sdg", WithTransport(devicetest.ATADisk{Model: "CT1000MX500SSD1", Serial: "2140E5F0A1B2"}.Transport()))
	require.NoError(t, err)
	defer d.Close()

	serial, err := d.scsi.UnitSerial()
	require.NoError(t, err)
	assert.Equal(t, "2140E5F0A1B2", serial)
}

func TestNVMeTemperatureNotReported(t *testing.T) {
	d, err := Open("/dev/nvme1", WithTransport(devicetest.NVMeController{Model: "Samsung SSD 980", Serial: "S64DNX0R"}.Transport()))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Temperature()
	assert.ErrorIs(t, err, ErrNotAvailable)

	info, err := d.Info()
	require.NoError(t, err)
	assert.Equal(t, "Samsung SSD 980", info.Model)
	assert.Nil(t, info.Temperature)
}
