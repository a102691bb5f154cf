package nvme

import (
	"math/big"

	"github.com/mscrnt/drivecheck/pkg/structure"
)

// HealthEntry is one named field of the SMART / Health log.
type HealthEntry struct {
	Name  string
	Value structure.Uint128
	Unit  string
}

var healthFields = []struct {
	name string
	unit string
}{
	{"composite_temperature", "kelvin"},
	{"available_spare", "%"},
	{"available_spare_threshold", "%"},
	{"percentage_used", "%"},
	{"data_units_read", "512000 bytes"},
	{"data_units_written", "512000 bytes"},
	{"host_read_commands", ""},
	{"host_write_commands", ""},
	{"controller_busy_time", "minutes"},
	{"power_cycles", ""},
	{"power_on_hours", "hours"},
	{"unsafe_shutdowns", ""},
	{"media_errors", ""},
	{"num_err_log_entries", ""},
	{"warning_temp_time", "minutes"},
	{"critical_temp_time", "minutes"},
}

// Health flattens a SMART log into an ordered list. The critical warning
// byte comes first, followed by the counters in log order.
func Health(log *structure.Decoded) []HealthEntry {
	cw := log.Nested("critical_warning").Encode()
	out := make([]HealthEntry, 0, len(healthFields)+1)
	out = append(out, HealthEntry{Name: "critical_warning", Value: structure.U128(uint64(cw[0]))})
	for _, f := range healthFields {
		out = append(out, HealthEntry{Name: f.name, Value: log.Uint128(f.name), Unit: f.unit})
	}
	return out
}

// CriticalWarnings names the warning bits that are set.
func CriticalWarnings(log *structure.Decoded) []string {
	return warningNames(log.Nested("critical_warning"))
}

// WarningNames names the bits set in a raw critical warning byte.
func WarningNames(v uint8) []string {
	d, err := structure.Decode(criticalWarning, []byte{v})
	if err != nil {
		return nil
	}
	return warningNames(d)
}

func warningNames(cw *structure.Decoded) []string {
	var set []string
	for _, f := range cw.Fields() {
		if f.Name != "reserved" && f.Value.Lo != 0 {
			set = append(set, f.Name)
		}
	}
	return set
}

// DataUnitBytes converts a data units counter to bytes. One unit is 1000
// 512-byte blocks.
func DataUnitBytes(units structure.Uint128) *big.Int {
	b := units.Big()
	return b.Mul(b, big.NewInt(512000))
}
