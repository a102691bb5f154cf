// Package transport sends raw pass-through commands to an open block device.
//
// A Transport is byte-opaque: it never looks inside a command block or a
// response. It is not safe for concurrent use; callers serialize commands per
// handle.
package transport

import (
	"errors"
	"fmt"
)

// Protocol selects the pass-through mechanism used for a request.
type Protocol int

const (
	// SCSI sends a CDB through the SCSI generic interface.
	SCSI Protocol = iota + 1
	// NVMeAdmin submits a 64-byte admin command through the NVMe driver.
	NVMeAdmin
)

func (p Protocol) String() string {
	switch p {
	case SCSI:
		return "scsi"
	case NVMeAdmin:
		return "nvme-admin"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// Class is the device family reported by Probe.
type Class int

const (
	Unknown Class = iota
	ClassSCSI
	ClassNVMe
)

func (c Class) String() string {
	switch c {
	case ClassSCSI:
		return "scsi"
	case ClassNVMe:
		return "nvme"
	default:
		return "unknown"
	}
}

// Request is one command round-trip. Length is the exact number of bytes
// the device is expected to return.
type Request struct {
	Protocol Protocol
	Command  []byte
	Length   int
}

// Response carries exactly Request.Length bytes.
type Response struct {
	Data []byte
}

// Transport is an open device handle.
type Transport interface {
	// Send issues req and blocks until the device answers.
	Send(req Request) (Response, error)
	// Probe reports which pass-through family the handle answers to.
	Probe() (Class, error)
	// Close releases the handle.
	Close() error
}

// Kind classifies transport failures.
type Kind int

const (
	IOFailure Kind = iota
	NotSupported
	PermissionDenied
	DeviceBusy
)

func (k Kind) String() string {
	switch k {
	case NotSupported:
		return "not supported"
	case PermissionDenied:
		return "permission denied"
	case DeviceBusy:
		return "device busy"
	default:
		return "i/o failure"
	}
}

// Error wraps an OS pass-through failure. Status holds the raw status: the
// errno, the packed SCSI status words, or the NVMe completion status.
type Error struct {
	Kind   Kind
	Op     string
	Status uint32
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (status %#x): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s (status %#x)", e.Op, e.Kind, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a transport Error of kind k.
func IsKind(err error, k Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == k
}

// ErrShortResponse is wrapped when a transport returns fewer bytes than asked.
var ErrShortResponse = errors.New("short response")

func checkRequest(req Request) error {
	if len(req.Command) == 0 {
		return &Error{Kind: NotSupported, Op: "send", Err: errors.New("empty command")}
	}
	if req.Length <= 0 {
		return &Error{Kind: NotSupported, Op: "send", Err: fmt.Errorf("invalid response length %d", req.Length)}
	}
	return nil
}
