// Package smart is the per-device SMART health check.
package smart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mscrnt/drivecheck/pkg/attrdb"
	"github.com/mscrnt/drivecheck/pkg/device"
	"github.com/mscrnt/drivecheck/pkg/nvme"
	"github.com/mscrnt/drivecheck/pkg/plugin"
)

func init() {
	plugin.Register(&Check{})
}

// Check reads identity, temperature and the SMART table of one device.
type Check struct {
	// Open opens the device; nil uses device.Open.
	Open func(path string) (*device.Device, error)
	// Attributes names ATA attributes; nil uses the built-in table.
	Attributes *attrdb.DB
}

// Name returns the check name
func (c *Check) Name() string {
	return "smart"
}

// Description returns the check description
func (c *Check) Description() string {
	return "Reads SMART attributes or the NVMe health log and flags failing values"
}

// ValidateParams validates the parameters
func (c *Check) ValidateParams(params plugin.Params) error {
	if params.Device == "" {
		return fmt.Errorf("device is required")
	}
	if v, ok := params.Number("max_temperature"); ok && v < 0 {
		return fmt.Errorf("max_temperature must not be negative")
	}
	return nil
}

// DefaultParams returns default parameters
func (c *Check) DefaultParams() plugin.Params {
	return plugin.Params{
		Timeout: 30 * time.Second,
		Config: map[string]interface{}{
			"max_temperature": 60, // celsius, 0 disables
		},
	}
}

// Info describes the check
func (c *Check) Info() plugin.Info {
	return plugin.Info{
		Name:        c.Name(),
		Description: c.Description(),
		Category:    "health",
		Metrics: []plugin.MetricInfo{
			{Name: "temperature", Type: plugin.MetricTypeGauge, Unit: "celsius", Description: "Drive temperature"},
			{Name: "attributes", Type: plugin.MetricTypeGauge, Description: "Number of SMART attributes or health fields"},
			{Name: "<attribute>.current", Type: plugin.MetricTypeGauge, Description: "Normalized ATA attribute value"},
			{Name: "<field>", Type: plugin.MetricTypeCounter, Description: "NVMe health log field"},
		},
		Parameters: []plugin.ParamInfo{
			{Name: "device", Type: "string", Description: "Block device path", Required: true},
			{Name: "max_temperature", Type: "int", Default: 60, Description: "Fail above this temperature in celsius, 0 disables"},
		},
	}
}

func (c *Check) open(path string) (*device.Device, error) {
	if c.Open != nil {
		return c.Open(path)
	}
	return device.Open(path)
}

func (c *Check) names() *attrdb.DB {
	if c.Attributes != nil {
		return c.Attributes
	}
	return attrdb.Default()
}

// Run executes the check
func (c *Check) Run(ctx context.Context, params plugin.Params) (plugin.Result, error) {
	result := plugin.Result{
		StartTime: time.Now(),
		Success:   true,
		Details:   make(map[string]interface{}),
	}
	finish := func(err error) (plugin.Result, error) {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		if err != nil {
			result.Success = false
			result.Error = err.Error()
		}
		return result, err
	}

	if err := c.ValidateParams(params); err != nil {
		return finish(err)
	}

	d, err := c.open(params.Device)
	if err != nil {
		return finish(fmt.Errorf("failed to open device: %w", err))
	}
	defer d.Close()

	info, err := d.Info()
	if err != nil {
		return finish(err)
	}
	result.Details["model"] = info.Model
	result.Details["serial"] = info.Serial
	result.Details["firmware"] = info.Firmware
	result.Details["variant"] = info.Variant

	if info.Temperature != nil {
		temp := *info.Temperature
		result.Record("temperature", float64(temp), "celsius")
		if limit, ok := params.Number("max_temperature"); ok && limit > 0 && float64(temp) > limit {
			result.Fail(fmt.Sprintf("temperature %d°C exceeds %.0f°C", temp, limit))
		}
	}

	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	table, err := d.SmartTable()
	if err != nil {
		if errors.Is(err, device.ErrUnsupportedOperation) {
			result.Details["smart"] = "not supported by this device"
			return finish(nil)
		}
		return finish(fmt.Errorf("failed to read SMART table: %w", err))
	}
	result.Record("attributes", float64(table.Len()), "")

	if table.ATA != nil {
		c.recordATA(&result, table)
	} else {
		recordNVMe(&result, table)
	}

	return finish(nil)
}

func (c *Check) recordATA(result *plugin.Result, table *device.Table) {
	db := c.names()
	for _, a := range table.ATA.Entries() {
		attr := db.Lookup(a.ID)
		key := fmt.Sprintf("%d_%s", a.ID, attr.Name)
		result.Record(key+".current", float64(a.Current), "")
		result.Record(key+".worst", float64(a.Worst), "")
		result.Record(key+".threshold", float64(a.Threshold), "")
		result.Record(key+".raw", float64(a.RawValue()), attr.Unit)
		if a.Failing() {
			result.Fail(fmt.Sprintf("attribute %d %s at %d, threshold %d", a.ID, attr.Name, a.Current, a.Threshold))
		}
	}
}

func recordNVMe(result *plugin.Result, table *device.Table) {
	for _, h := range table.NVMe {
		result.Record(h.Name, h.Value.Float64(), h.Unit)
		if h.Name == "critical_warning" && h.Value.Uint64() != 0 {
			result.Fail(fmt.Sprintf("critical warning %#02x (%s)", h.Value.Uint64(), strings.Join(nvme.WarningNames(uint8(h.Value.Uint64())), ", ")))
		}
	}
}
