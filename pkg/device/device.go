// Package device opens a block device and exposes its identity and health
// through the protocol adapter that matches it.
//
// A Device is not safe for concurrent use. Open one per goroutine.
package device

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/mscrnt/drivecheck/pkg/nvme"
	"github.com/mscrnt/drivecheck/pkg/scsi"
	"github.com/mscrnt/drivecheck/pkg/structure"
	"github.com/mscrnt/drivecheck/pkg/transport"
)

// ATA attribute IDs carrying the drive temperature in raw byte 0.
const (
	AttrTemperature        = 194
	AttrAirflowTemperature = 190
)

// Opener opens a transport for a path.
type Opener func(path string) (transport.Transport, error)

type options struct {
	transport transport.Transport
	opener    Opener
}

// Option configures Open.
type Option func(*options)

// WithTransport uses t instead of opening path. The Device takes ownership
// of t and closes it.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithOpener replaces the platform transport opener.
func WithOpener(fn Opener) Option {
	return func(o *options) {
		o.opener = fn
	}
}

// Device is an open handle bound to one protocol variant.
type Device struct {
	path    string
	variant Variant
	t       transport.Transport
	scsi    *scsi.Adapter
	nvme    *nvme.Adapter

	closed   bool
	once     sync.Once
	closeErr error
}

// Open opens path, probes it and selects the SCSI or NVMe adapter.
func Open(path string, opts ...Option) (*Device, error) {
	o := options{opener: transport.Open}
	for _, opt := range opts {
		opt(&o)
	}

	t := o.transport
	if t == nil {
		var err error
		t, err = o.opener(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
			}
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
	}

	class, err := t.Probe()
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}

	d := &Device{path: path, t: t}
	switch class {
	case transport.ClassSCSI:
		d.variant = SCSI
		d.scsi = scsi.New(t)
	case transport.ClassNVMe:
		d.variant = NVMe
		d.nvme = nvme.New(t)
	default:
		t.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDeviceType, path)
	}
	return d, nil
}

// Close releases the handle. Later calls return the first result.
func (d *Device) Close() error {
	d.once.Do(func() {
		d.closed = true
		d.closeErr = d.t.Close()
	})
	return d.closeErr
}

// Path returns the path the device was opened with.
func (d *Device) Path() string {
	return d.path
}

// Variant returns the protocol family selected at open.
func (d *Device) Variant() Variant {
	return d.variant
}

// Capabilities lists the raw operations this device implements.
func (d *Device) Capabilities() []Operation {
	return d.variant.Capabilities()
}

func (d *Device) check(op Operation) error {
	if d.closed {
		return ErrDeviceClosed
	}
	if op != "" && !d.variant.Supports(op) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedOperation, op, d.variant)
	}
	return nil
}

// Command dispatches a raw operation and returns the decoded response.
func (d *Device) Command(op Operation) (*structure.Decoded, error) {
	if err := d.check(op); err != nil {
		return nil, err
	}

	switch d.variant {
	case SCSI:
		switch op {
		case OpInquiry:
			return d.scsi.Inquiry()
		case OpIdentify:
			return d.scsi.Identify()
		case OpSmart:
			return d.scsi.SmartData()
		case OpThresholds:
			return d.scsi.SmartThresholds()
		}
	case NVMe:
		switch op {
		case OpIdentify:
			return d.nvme.Identify()
		case OpSmart:
			return d.nvme.SmartLog()
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedOperation, op, d.variant)
}

// SmartThresholds returns the ATA threshold page.
func (d *Device) SmartThresholds() (*structure.Decoded, error) {
	return d.Command(OpThresholds)
}

// ataIdentify reads IDENTIFY DEVICE. A device that rejects ATA
// PASS-THROUGH yields (nil, nil) so callers fall back to INQUIRY.
func (d *Device) ataIdentify() (*structure.Decoded, error) {
	id, err := d.scsi.Identify()
	if err != nil {
		if transport.IsKind(err, transport.IOFailure) || transport.IsKind(err, transport.NotSupported) {
			return nil, nil
		}
		return nil, err
	}
	return id, nil
}

// Model returns the model string with padding trimmed.
func (d *Device) Model() (string, error) {
	if err := d.check(""); err != nil {
		return "", err
	}

	if d.variant == NVMe {
		id, err := d.nvme.Identify()
		if err != nil {
			return "", err
		}
		return nvme.Model(id), nil
	}

	id, err := d.ataIdentify()
	if err != nil {
		return "", err
	}
	if id != nil {
		if m := scsi.IdentityModel(id); m != "" {
			return m, nil
		}
	}
	inq, err := d.scsi.Inquiry()
	if err != nil {
		return "", err
	}
	return scsi.InquiryModel(inq), nil
}

// Serial returns the serial number with padding trimmed. A SCSI device
// that reports neither an IDENTIFY nor a VPD serial yields "".
func (d *Device) Serial() (string, error) {
	if err := d.check(""); err != nil {
		return "", err
	}

	if d.variant == NVMe {
		id, err := d.nvme.Identify()
		if err != nil {
			return "", err
		}
		return nvme.Serial(id), nil
	}

	id, err := d.ataIdentify()
	if err != nil {
		return "", err
	}
	if id != nil {
		if s := scsi.IdentitySerial(id); s != "" {
			return s, nil
		}
	}
	serial, err := d.scsi.UnitSerial()
	if err != nil {
		if transport.IsKind(err, transport.IOFailure) || transport.IsKind(err, transport.NotSupported) {
			return "", nil
		}
		return "", err
	}
	return serial, nil
}

// Firmware returns the firmware revision.
func (d *Device) Firmware() (string, error) {
	if err := d.check(""); err != nil {
		return "", err
	}

	if d.variant == NVMe {
		id, err := d.nvme.Identify()
		if err != nil {
			return "", err
		}
		return nvme.Firmware(id), nil
	}

	id, err := d.ataIdentify()
	if err != nil {
		return "", err
	}
	if id != nil {
		if fw := scsi.IdentityFirmware(id); fw != "" {
			return fw, nil
		}
	}
	inq, err := d.scsi.Inquiry()
	if err != nil {
		return "", err
	}
	return inq.ASCII("revision"), nil
}

// Temperature returns the current drive temperature in degrees Celsius.
func (d *Device) Temperature() (int, error) {
	if err := d.check(""); err != nil {
		return 0, err
	}

	if d.variant == NVMe {
		log, err := d.nvme.SmartLog()
		if err != nil {
			return 0, err
		}
		c, ok := nvme.Celsius(log)
		if !ok {
			return 0, fmt.Errorf("%w: composite temperature is zero", ErrNotAvailable)
		}
		return c, nil
	}

	data, err := d.scsi.SmartData()
	if err != nil {
		return 0, err
	}
	return ataTemperature(scsi.NewAttributeTable(data, nil))
}

func ataTemperature(t *scsi.AttributeTable) (int, error) {
	for _, id := range []uint8{AttrTemperature, AttrAirflowTemperature} {
		if a, ok := t.Get(id); ok {
			return int(a.Raw[0]), nil
		}
	}
	return 0, fmt.Errorf("%w: no temperature attribute", ErrNotAvailable)
}

// Table is the health table of either variant. Exactly one of ATA and
// NVMe is set.
type Table struct {
	ATA  *scsi.AttributeTable
	NVMe []nvme.HealthEntry
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t.ATA != nil {
		return t.ATA.Len()
	}
	return len(t.NVMe)
}

// SmartTable returns the attribute table in device order with unique keys.
func (d *Device) SmartTable() (*Table, error) {
	if err := d.check(OpSmart); err != nil {
		return nil, err
	}

	if d.variant == NVMe {
		log, err := d.nvme.SmartLog()
		if err != nil {
			return nil, err
		}
		return &Table{NVMe: nvme.Health(log)}, nil
	}

	t, err := d.scsi.SmartTable()
	if err != nil {
		return nil, err
	}
	return &Table{ATA: t}, nil
}
