// Package inventory is the check that enumerates every disk and reads its
// identity and temperature.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/mscrnt/drivecheck/pkg/device"
	"github.com/mscrnt/drivecheck/pkg/plugin"
)

func init() {
	plugin.Register(&Check{})
}

// Check walks every whole disk the kernel reports.
type Check struct {
	// List enumerates paths; nil uses device.List.
	List func() ([]string, error)
	// Inspect reads one device; nil uses device.Inspect.
	Inspect func(path string) (device.Info, error)
}

// Name returns the check name
func (c *Check) Name() string {
	return "inventory"
}

// Description returns the check description
func (c *Check) Description() string {
	return "Lists all disks with model, serial and temperature"
}

// ValidateParams validates the parameters
func (c *Check) ValidateParams(params plugin.Params) error {
	if params.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// DefaultParams returns default parameters
func (c *Check) DefaultParams() plugin.Params {
	return plugin.Params{
		Timeout: 2 * time.Minute,
	}
}

// Run executes the check
func (c *Check) Run(ctx context.Context, params plugin.Params) (plugin.Result, error) {
	result := plugin.Result{
		StartTime: time.Now(),
		Success:   true,
		Details:   make(map[string]interface{}),
	}

	list := c.List
	if list == nil {
		list = device.List
	}
	inspect := c.Inspect
	if inspect == nil {
		inspect = func(path string) (device.Info, error) { return device.Inspect(path) }
	}

	paths, err := list()
	if err != nil {
		result.EndTime = time.Now()
		result.Success = false
		result.Error = err.Error()
		return result, err
	}
	result.Record("devices", float64(len(paths)), "")

	var devices []device.Info
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			result.EndTime = time.Now()
			result.Success = false
			result.Error = err.Error()
			return result, err
		}

		info, err := inspect(path)
		if err != nil {
			result.Fail(fmt.Sprintf("%s: %v", path, err))
			continue
		}
		devices = append(devices, info)
		if info.Temperature != nil {
			result.Record(path+".temperature", float64(*info.Temperature), "celsius")
		}
	}
	result.Details["devices"] = devices

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result, nil
}
