package device

import "fmt"

// Variant is the protocol family a Device speaks.
type Variant int

const (
	SCSI Variant = iota + 1
	NVMe
)

func (v Variant) String() string {
	switch v {
	case SCSI:
		return "scsi"
	case NVMe:
		return "nvme"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Operation names a raw command that can be dispatched with Command.
type Operation string

const (
	OpInquiry    Operation = "inquiry"
	OpIdentify   Operation = "identify"
	OpSmart      Operation = "smart"
	OpThresholds Operation = "thresholds"
)

// Operations lists every operation in display order.
var Operations = []Operation{OpInquiry, OpIdentify, OpSmart, OpThresholds}

// ParseOperation validates an operation name.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

var capabilities = map[Variant]map[Operation]bool{
	SCSI: {OpInquiry: true, OpIdentify: true, OpSmart: true, OpThresholds: true},
	NVMe: {OpIdentify: true, OpSmart: true},
}

// Supports reports whether variant v implements op.
func (v Variant) Supports(op Operation) bool {
	return capabilities[v][op]
}

// Capabilities lists the operations v implements in display order.
func (v Variant) Capabilities() []Operation {
	var out []Operation
	for _, op := range Operations {
		if v.Supports(op) {
			out = append(out, op)
		}
	}
	return out
}
