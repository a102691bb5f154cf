// Package nvme issues NVMe admin commands and decodes their responses.
package nvme

import (
	"fmt"

	"github.com/mscrnt/drivecheck/pkg/structure"
	"github.com/mscrnt/drivecheck/pkg/transport"
)

// Admin opcodes and identifiers.
const (
	OpGetLogPage = 0x02
	OpIdentify   = 0x06

	CNSController = 0x01
	LogSmart      = 0x02

	// NamespaceAll addresses the controller-wide log.
	NamespaceAll = 0xffffffff

	// KelvinOffset converts the composite temperature to Celsius.
	KelvinOffset = 273
)

// IdentifyCommand builds an Identify Controller command.
func IdentifyCommand() ([]byte, error) {
	b := structure.New(AdminCommand)
	if err := b.Set("opcode", OpIdentify); err != nil {
		return nil, err
	}
	if err := b.Set("cdw10", CNSController); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// GetLogPageCommand builds a Get Log Page command for a log of size bytes.
func GetLogPageCommand(lid uint8, size int) ([]byte, error) {
	numd := uint64(size/4 - 1)
	b := structure.New(AdminCommand)
	if err := b.Set("opcode", OpGetLogPage); err != nil {
		return nil, err
	}
	if err := b.Set("nsid", NamespaceAll); err != nil {
		return nil, err
	}
	if err := b.Set("cdw10", uint64(lid)|numd<<16); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Adapter speaks NVMe admin commands to a single transport handle.
type Adapter struct {
	t transport.Transport
}

// New returns an Adapter over t. The adapter does not own t.
func New(t transport.Transport) *Adapter {
	return &Adapter{t: t}
}

func (a *Adapter) exec(cmd []byte, desc *structure.Description) (*structure.Decoded, error) {
	resp, err := a.t.Send(transport.Request{
		Protocol: transport.NVMeAdmin,
		Command:  cmd,
		Length:   desc.Size(),
	})
	if err != nil {
		return nil, err
	}
	return structure.Decode(desc, resp.Data)
}

// Identify issues Identify Controller.
func (a *Adapter) Identify() (*structure.Decoded, error) {
	cmd, err := IdentifyCommand()
	if err != nil {
		return nil, err
	}
	d, err := a.exec(cmd, IdentifyController)
	if err != nil {
		return nil, fmt.Errorf("failed to send NVMe identify: %w", err)
	}
	return d, nil
}

// SmartLog reads the SMART / Health Information log page.
func (a *Adapter) SmartLog() (*structure.Decoded, error) {
	cmd, err := GetLogPageCommand(LogSmart, SmartLogLen)
	if err != nil {
		return nil, err
	}
	d, err := a.exec(cmd, SmartLog)
	if err != nil {
		return nil, fmt.Errorf("failed to read NVMe SMART log: %w", err)
	}
	return d, nil
}

// Model returns the trimmed model number of an Identify Controller page.
func Model(id *structure.Decoded) string {
	return id.ASCII("mn")
}

// Serial returns the trimmed serial number.
func Serial(id *structure.Decoded) string {
	return id.ASCII("sn")
}

// Firmware returns the trimmed firmware revision.
func Firmware(id *structure.Decoded) string {
	return id.ASCII("fr")
}

// Version formats the VER field as major.minor.tertiary.
func Version(id *structure.Decoded) string {
	v := id.Uint("ver")
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v>>16, v>>8&0xff, v&0xff)
}

// Celsius converts the composite temperature of a SMART log. A controller
// that does not report one leaves the field zero, and ok is false.
func Celsius(log *structure.Decoded) (celsius int, ok bool) {
	k := log.Uint("composite_temperature")
	if k == 0 {
		return 0, false
	}
	return int(k) - KelvinOffset, true
}
