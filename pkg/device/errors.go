package device

import "errors"

var (
	// ErrUnsupportedOperation is returned when the device variant has no
	// implementation of the requested operation.
	ErrUnsupportedOperation = errors.New("operation not supported by this device")
	// ErrDeviceNotFound is returned by Open when the path does not exist.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrUnsupportedDeviceType is returned by Open when neither SCSI nor
	// NVMe pass-through answers.
	ErrUnsupportedDeviceType = errors.New("unsupported device type")
	// ErrDeviceClosed is returned by every accessor after Close.
	ErrDeviceClosed = errors.New("device is closed")
	// ErrNotAvailable is returned when the device answers but does not
	// report the requested value.
	ErrNotAvailable = errors.New("value not reported by device")
)
