package device

import (
	"errors"
	"fmt"
)

// Info is a one-shot summary of a device.
type Info struct {
	Path        string `json:"path"`
	Variant     string `json:"variant"`
	Model       string `json:"model"`
	Serial      string `json:"serial"`
	Firmware    string `json:"firmware"`
	Temperature *int   `json:"temperature_celsius,omitempty"`
}

// Info collects identity and temperature. A device without a temperature
// reading leaves Temperature nil.
func (d *Device) Info() (Info, error) {
	info := Info{Path: d.path, Variant: d.variant.String()}

	var err error
	if info.Model, err = d.Model(); err != nil {
		return info, fmt.Errorf("failed to read model: %w", err)
	}
	if info.Serial, err = d.Serial(); err != nil {
		return info, fmt.Errorf("failed to read serial: %w", err)
	}
	if info.Firmware, err = d.Firmware(); err != nil {
		return info, fmt.Errorf("failed to read firmware: %w", err)
	}

	temp, err := d.Temperature()
	switch {
	case err == nil:
		info.Temperature = &temp
	case errors.Is(err, ErrNotAvailable):
	default:
		return info, fmt.Errorf("failed to read temperature: %w", err)
	}
	return info, nil
}

// Inspect opens path, collects Info and closes the device.
func Inspect(path string, opts ...Option) (Info, error) {
	d, err := Open(path, opts...)
	if err != nil {
		return Info{}, err
	}
	defer d.Close()
	return d.Info()
}
