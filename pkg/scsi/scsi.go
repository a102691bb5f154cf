// Package scsi issues SCSI and ATA PASS-THROUGH commands and decodes their
// responses.
package scsi

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mscrnt/drivecheck/pkg/structure"
	"github.com/mscrnt/drivecheck/pkg/transport"
)

// Adapter speaks SCSI to a single transport handle.
type Adapter struct {
	t transport.Transport
}

// New returns an Adapter over t. The adapter does not own t.
func New(t transport.Transport) *Adapter {
	return &Adapter{t: t}
}

func (a *Adapter) exec(cdb []byte, desc *structure.Description) (*structure.Decoded, error) {
	resp, err := a.t.Send(transport.Request{
		Protocol: transport.SCSI,
		Command:  cdb,
		Length:   desc.Size(),
	})
	if err != nil {
		return nil, err
	}
	return structure.Decode(desc, resp.Data)
}

// Inquiry issues a standard INQUIRY.
func (a *Adapter) Inquiry() (*structure.Decoded, error) {
	d, err := a.exec(InquiryCDB(InquiryLen), InquiryData)
	if err != nil {
		return nil, fmt.Errorf("failed to send INQUIRY: %w", err)
	}
	return d, nil
}

// InquiryVPD requests a vital product data page. Only the Unit Serial
// Number page has a layout.
func (a *Adapter) InquiryVPD(page byte) (*structure.Decoded, error) {
	if page != PageUnitSerial {
		return nil, fmt.Errorf("no layout for VPD page %#02x", page)
	}
	d, err := a.exec(InquiryVPDCDB(page, VPDLen), SerialPage)
	if err != nil {
		return nil, fmt.Errorf("failed to read VPD page %#02x: %w", page, err)
	}
	return d, nil
}

// UnitSerial returns the serial number from VPD page 0x80.
func (a *Adapter) UnitSerial() (string, error) {
	d, err := a.InquiryVPD(PageUnitSerial)
	if err != nil {
		return "", err
	}
	return VPDSerial(d), nil
}

// VPDSerial extracts the serial from a decoded SerialPage, honouring the
// page length.
func VPDSerial(d *structure.Decoded) string {
	n := int(binary.BigEndian.Uint16(d.Bytes("page_length")))
	serial := d.Bytes("serial")
	if n < len(serial) {
		serial = serial[:n]
	}
	return trim(serial)
}

// Identify issues ATA IDENTIFY DEVICE through ATA PASS-THROUGH(16).
func (a *Adapter) Identify() (*structure.Decoded, error) {
	d, err := a.exec(IdentifyCDB(), IdentifyData)
	if err != nil {
		return nil, fmt.Errorf("failed to send ATA IDENTIFY: %w", err)
	}
	return d, nil
}

// SmartData issues SMART READ DATA.
func (a *Adapter) SmartData() (*structure.Decoded, error) {
	d, err := a.exec(SmartCDB(SmartReadData), SmartData)
	if err != nil {
		return nil, fmt.Errorf("failed to send SMART READ DATA: %w", err)
	}
	return d, nil
}

// SmartThresholds issues SMART READ THRESHOLDS.
func (a *Adapter) SmartThresholds() (*structure.Decoded, error) {
	d, err := a.exec(SmartCDB(SmartReadThresholds), SmartThresholds)
	if err != nil {
		return nil, fmt.Errorf("failed to send SMART READ THRESHOLDS: %w", err)
	}
	return d, nil
}

// SmartTable reads attribute data and thresholds and joins them by ID.
func (a *Adapter) SmartTable() (*AttributeTable, error) {
	data, err := a.SmartData()
	if err != nil {
		return nil, err
	}
	thresholds, err := a.SmartThresholds()
	if err != nil {
		return nil, err
	}
	return NewAttributeTable(data, thresholds), nil
}

// VerifyChecksum reports whether a 512-byte SMART or IDENTIFY page sums to
// zero modulo 256.
func VerifyChecksum(page []byte) bool {
	if len(page) != PageLen {
		return false
	}
	var sum byte
	for _, b := range page {
		sum += b
	}
	return sum == 0
}

// IdentityModel returns the model string from an IDENTIFY page.
func IdentityModel(d *structure.Decoded) string {
	return d.SwappedASCII("model")
}

// IdentitySerial returns the serial string from an IDENTIFY page.
func IdentitySerial(d *structure.Decoded) string {
	return d.SwappedASCII("serial")
}

// IdentityFirmware returns the firmware revision from an IDENTIFY page.
func IdentityFirmware(d *structure.Decoded) string {
	return d.SwappedASCII("firmware")
}

// InquiryModel joins the vendor and product identification.
func InquiryModel(d *structure.Decoded) string {
	vendor, product := d.ASCII("vendor"), d.ASCII("product")
	switch {
	case vendor == "":
		return product
	case product == "":
		return vendor
	default:
		return vendor + " " + product
	}
}

func trim(b []byte) string {
	return strings.Trim(string(b), " \x00")
}
