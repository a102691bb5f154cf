package nvme

import "github.com/mscrnt/drivecheck/pkg/structure"

const (
	// IdentifyLen is the Identify Controller data size.
	IdentifyLen = 4096
	// SmartLogLen is the SMART / Health Information log page size.
	SmartLogLen = 512
	// CommandLen is the size of struct nvme_passthru_cmd.
	CommandLen = 72
)

// AdminCommand is struct nvme_passthru_cmd from <linux/nvme_ioctl.h>. The
// transport fills in addr and data_len.
var AdminCommand = structure.MustDefine("nvme_passthru_cmd", CommandLen,
	structure.Uint("opcode", 8),
	structure.Uint("flags", 8),
	structure.Uint("rsvd1", 16),
	structure.Uint("nsid", 32),
	structure.Uint("cdw2", 32),
	structure.Uint("cdw3", 32),
	structure.Uint("metadata", 64),
	structure.Uint("addr", 64),
	structure.Uint("metadata_len", 32),
	structure.Uint("data_len", 32),
	structure.Uint("cdw10", 32),
	structure.Uint("cdw11", 32),
	structure.Uint("cdw12", 32),
	structure.Uint("cdw13", 32),
	structure.Uint("cdw14", 32),
	structure.Uint("cdw15", 32),
	structure.Uint("timeout_ms", 32),
	structure.Uint("result", 32),
)

var adminCommandSupport = structure.MustDefine("oacs", 2,
	structure.Bits("security", 1),
	structure.Bits("format", 1),
	structure.Bits("firmware", 1),
	structure.Bits("ns_mgmt", 1),
	structure.Bits("self_test", 1),
	structure.Bits("directives", 1),
	structure.Bits("nvme_mi", 1),
	structure.Bits("virt_mgmt", 1),
	structure.Bits("doorbell", 1),
	structure.Bits("lba_status", 1),
	structure.Bits("reserved", 6),
)

// IdentifyController is the Identify Controller data structure (CNS 01h).
var IdentifyController = structure.MustDefine("nvme_identify_controller", IdentifyLen,
	structure.Uint("vid", 16),
	structure.Uint("ssvid", 16),
	structure.Bytes("sn", 20),
	structure.Bytes("mn", 40),
	structure.Bytes("fr", 8),
	structure.Uint("rab", 8),
	structure.Uint("ieee", 24),
	structure.Uint("cmic", 8),
	structure.Uint("mdts", 8),
	structure.Uint("cntlid", 16),
	structure.Uint("ver", 32),
	structure.Uint("rtd3r", 32),
	structure.Uint("rtd3e", 32),
	structure.Uint("oaes", 32),
	structure.Uint("ctratt", 32),
	structure.Bytes("reserved_100", 156),
	structure.Struct("oacs", adminCommandSupport),
	structure.Uint("acl", 8),
	structure.Uint("aerl", 8),
	structure.Uint("frmw", 8),
	structure.Uint("lpa", 8),
	structure.Uint("elpe", 8),
	structure.Uint("npss", 8),
	structure.Uint("avscc", 8),
	structure.Uint("apsta", 8),
	structure.Uint("wctemp", 16),
	structure.Uint("cctemp", 16),
	structure.Uint("mtfa", 16),
	structure.Uint("hmpre", 32),
	structure.Uint("hmmin", 32),
	structure.Uint("tnvmcap", 128),
	structure.Uint("unvmcap", 128),
	structure.Bytes("reserved_312", 3784),
)

var criticalWarning = structure.MustDefine("critical_warning", 1,
	structure.Bits("available_spare", 1),
	structure.Bits("temperature", 1),
	structure.Bits("reliability", 1),
	structure.Bits("read_only", 1),
	structure.Bits("volatile_backup", 1),
	structure.Bits("pmr_read_only", 1),
	structure.Bits("reserved", 2),
)

// SmartLog is the SMART / Health Information log page (LID 02h).
var SmartLog = structure.MustDefine("nvme_smart_log", SmartLogLen,
	structure.Struct("critical_warning", criticalWarning),
	structure.Uint("composite_temperature", 16),
	structure.Uint("available_spare", 8),
	structure.Uint("available_spare_threshold", 8),
	structure.Uint("percentage_used", 8),
	structure.Uint("endurance_group_critical_warning", 8),
	structure.Bytes("reserved_7", 25),
	structure.Uint("data_units_read", 128),
	structure.Uint("data_units_written", 128),
	structure.Uint("host_read_commands", 128),
	structure.Uint("host_write_commands", 128),
	structure.Uint("controller_busy_time", 128),
	structure.Uint("power_cycles", 128),
	structure.Uint("power_on_hours", 128),
	structure.Uint("unsafe_shutdowns", 128),
	structure.Uint("media_errors", 128),
	structure.Uint("num_err_log_entries", 128),
	structure.Uint("warning_temp_time", 32),
	structure.Uint("critical_temp_time", 32),
	structure.Uint("temperature_sensor_1", 16),
	structure.Uint("temperature_sensor_2", 16),
	structure.Uint("temperature_sensor_3", 16),
	structure.Uint("temperature_sensor_4", 16),
	structure.Uint("temperature_sensor_5", 16),
	structure.Uint("temperature_sensor_6", 16),
	structure.Uint("temperature_sensor_7", 16),
	structure.Uint("temperature_sensor_8", 16),
	structure.Bytes("reserved_216", 296),
)
