// Package devicetest builds in-memory disks for tests of code that opens
// devices.
package devicetest

import (
	"github.com/mscrnt/drivecheck/pkg/nvme"
	"github.com/mscrnt/drivecheck/pkg/scsi"
	"github.com/mscrnt/drivecheck/pkg/structure"
	"github.com/mscrnt/drivecheck/pkg/transport"
)

// Attr is one ATA SMART attribute row.
type Attr struct {
	ID        uint8
	Current   uint8
	Worst     uint8
	Threshold uint8
	Raw       uint64
}

// ATADisk describes a SATA disk behind a SCSI translation layer.
type ATADisk struct {
	Model      string
	Serial     string
	Firmware   string
	Attributes []Attr
}

// Transport returns a fake answering INQUIRY (standard and unit serial
// VPD), IDENTIFY and both SMART pages.
func (a ATADisk) Transport() *transport.Fake {
	inq := structure.New(scsi.InquiryData)
	must(inq.SetBytes("vendor", []byte("ATA     ")))
	must(inq.SetBytes("product", fit(a.Model, 16, false)))

	vpd := structure.New(scsi.SerialPage)
	must(vpd.Set("page_code", scsi.PageUnitSerial))
	must(vpd.SetBytes("page_length", []byte{0, byte(len(a.Serial))}))
	must(vpd.SetBytes("serial", []byte(a.Serial)))

	id := structure.New(scsi.IdentifyData)
	must(id.SetBytes("model", fit(a.Model, 40, true)))
	must(id.SetBytes("serial", fit(a.Serial, 20, true)))
	must(id.SetBytes("firmware", fit(a.Firmware, 8, true)))
	must(id.SetNested("command_set_1", smartSupported()))

	data := structure.New(scsi.SmartData)
	thr := structure.New(scsi.SmartThresholds)
	for i, at := range a.Attributes {
		e := structure.New(scsi.AttributeEntry)
		must(e.Set("id", uint64(at.ID)))
		must(e.Set("flags", 0x0003))
		must(e.Set("current", uint64(at.Current)))
		must(e.Set("worst", uint64(at.Worst)))
		raw := make([]byte, 6)
		for j := range raw {
			raw[j] = byte(at.Raw >> (8 * j))
		}
		must(e.SetBytes("raw", raw))
		must(data.SetElement("attributes", i, e.Decoded()))

		te := structure.New(scsi.ThresholdEntry)
		must(te.Set("id", uint64(at.ID)))
		must(te.Set("threshold", uint64(at.Threshold)))
		must(thr.SetElement("thresholds", i, te.Decoded()))
	}

	return &transport.Fake{Class: transport.ClassSCSI, Respond: func(req transport.Request) ([]byte, error) {
		cdb := req.Command
		switch {
		case cdb[0] == scsi.OpInquiry && cdb[1] == 1:
			return vpd.Bytes(), nil
		case cdb[0] == scsi.OpInquiry:
			return inq.Bytes(), nil
		case len(cdb) < 16:
		case cdb[14] == scsi.ATAIdentifyDevice:
			return id.Bytes(), nil
		case cdb[4] == scsi.SmartReadData:
			return data.Bytes(), nil
		case cdb[4] == scsi.SmartReadThresholds:
			return thr.Bytes(), nil
		}
		return nil, &transport.Error{Kind: transport.NotSupported, Op: "sg_io"}
	}}
}

func smartSupported() *structure.Decoded {
	cs, err := structure.Decode(scsi.IdentifyData, make([]byte, scsi.PageLen))
	must(err)
	b := structure.From(cs.Nested("command_set_1"))
	must(b.Set("smart_supported", 1))
	return b.Decoded()
}

// NVMeController describes an NVMe controller.
type NVMeController struct {
	Model           string
	Serial          string
	Firmware        string
	Kelvin          uint16
	CriticalWarning uint8
	PowerOnHours    uint64
	DataUnitsRead   uint64
}

// Transport returns a fake answering Identify Controller and the SMART log.
func (n NVMeController) Transport() *transport.Fake {
	id := structure.New(nvme.IdentifyController)
	must(id.SetBytes("mn", fit(n.Model, 40, false)))
	must(id.SetBytes("sn", fit(n.Serial, 20, false)))
	must(id.SetBytes("fr", fit(n.Firmware, 8, false)))

	log := structure.New(nvme.SmartLog)
	must(log.Set("composite_temperature", uint64(n.Kelvin)))
	must(log.Set("power_on_hours", n.PowerOnHours))
	must(log.Set("data_units_read", n.DataUnitsRead))
	cw, err := structure.Decode(nvme.SmartLog, make([]byte, nvme.SmartLogLen))
	must(err)
	warn := structure.From(cw.Nested("critical_warning"))
	for i, f := range cw.Nested("critical_warning").Fields() {
		if f.Name != "reserved" && n.CriticalWarning&(1<<i) != 0 {
			must(warn.Set(f.Name, 1))
		}
	}
	must(log.SetNested("critical_warning", warn.Decoded()))

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

// fit pads s with spaces to n bytes, byte-swapping words for ATA strings.
func fit(s string, n int, swap bool) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	if swap {
		for i := 0; i+1 < n; i += 2 {
			b[i], b[i+1] = b[i+1], b[i]
		}
	}
	return b
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
