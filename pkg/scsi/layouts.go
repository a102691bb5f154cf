package scsi

import "github.com/mscrnt/drivecheck/pkg/structure"

const (
	// InquiryLen is the standard INQUIRY response size.
	InquiryLen = 36
	// VPDLen is the response size requested for vital product data pages.
	VPDLen = 96
	// PageLen is the size of ATA IDENTIFY and SMART pages.
	PageLen = 512
	// MaxAttributes is the number of attribute slots in a SMART page.
	MaxAttributes = 30
)

// INQUIRY data, SPC-4 6.4.2. Multi-byte fields in SCSI data are big-endian,
// so they are kept as byte arrays.
var InquiryData = structure.MustDefine("inquiry", InquiryLen,
	structure.Bits("peripheral_device_type", 5),
	structure.Bits("peripheral_qualifier", 3),
	structure.Bits("reserved", 7),
	structure.Bits("rmb", 1),
	structure.Uint("version", 8),
	structure.Bits("response_data_format", 4),
	structure.Bits("hisup", 1),
	structure.Bits("normaca", 1),
	structure.Bits("obsolete", 2),
	structure.Uint("additional_length", 8),
	structure.Bytes("flags", 3),
	structure.Bytes("vendor", 8),
	structure.Bytes("product", 16),
	structure.Bytes("revision", 4),
)

// Unit Serial Number VPD page (0x80).
var SerialPage = structure.MustDefine("vpd_unit_serial", VPDLen,
	structure.Uint("peripheral", 8),
	structure.Uint("page_code", 8),
	structure.Bytes("page_length", 2),
	structure.Bytes("serial", VPDLen-4),
)

var commandSet1 = structure.MustDefine("command_set_1", 2,
	structure.Bits("smart_supported", 1),
	structure.Bits("security", 1),
	structure.Bits("removable", 1),
	structure.Bits("power_mgmt", 1),
	structure.Bits("packet", 1),
	structure.Bits("write_cache", 1),
	structure.Bits("look_ahead", 1),
	structure.Bits("release_int", 1),
	structure.Bits("service_int", 1),
	structure.Bits("device_reset", 1),
	structure.Bits("host_protected_area", 1),
	structure.Bits("obsolete", 1),
	structure.Bits("write_buffer", 1),
	structure.Bits("read_buffer", 1),
	structure.Bits("nop", 1),
	structure.Bits("obsolete2", 1),
)

var commandSetEnabled1 = structure.MustDefine("command_set_enabled_1", 2,
	structure.Bits("smart_enabled", 1),
	structure.Bits("rest", 15),
)

// IdentifyData is the ATA IDENTIFY DEVICE page (ACS-3 7.12.7). Strings are
// stored as byte-swapped words.
var IdentifyData = structure.MustDefine("ata_identify", PageLen,
	structure.Uint("general_config", 16),
	structure.Bytes("words_1_9", 18),
	structure.Bytes("serial", 20),
	structure.Bytes("words_20_22", 6),
	structure.Bytes("firmware", 8),
	structure.Bytes("model", 40),
	structure.Bytes("words_47_79", 66),
	structure.Uint("major_version", 16),
	structure.Uint("minor_version", 16),
	structure.Struct("command_set_1", commandSet1),
	structure.Uint("command_set_2", 16),
	structure.Uint("command_set_ext", 16),
	structure.Struct("command_set_enabled_1", commandSetEnabled1),
	structure.Uint("command_set_enabled_2", 16),
	structure.Uint("command_set_default", 16),
	structure.Bytes("words_88_99", 24),
	structure.Uint("lba48_sectors", 64),
	structure.Bytes("words_104_107", 8),
	structure.Bytes("wwn", 8),
	structure.Bytes("words_112_216", 210),
	structure.Uint("rotation_rate", 16),
	structure.Bytes("words_218_254", 74),
	structure.Uint("signature", 8),
	structure.Uint("checksum", 8),
)

// AttributeEntry is one 12-byte slot of the SMART READ DATA attribute table.
var AttributeEntry = structure.MustDefine("smart_attribute", 12,
	structure.Uint("id", 8),
	structure.Uint("flags", 16),
	structure.Uint("current", 8),
	structure.Uint("worst", 8),
	structure.Bytes("raw", 6),
	structure.Uint("reserved", 8),
)

// SmartData is the SMART READ DATA page.
var SmartData = structure.MustDefine("smart_data", PageLen,
	structure.Uint("version", 16),
	structure.Array("attributes", AttributeEntry, MaxAttributes),
	structure.Uint("offline_collection_status", 8),
	structure.Bits("self_test_percent_remaining", 4),
	structure.Bits("self_test_status", 4),
	structure.Uint("offline_collection_time", 16),
	structure.Uint("vendor_specific_366", 8),
	structure.Uint("offline_collection_capability", 8),
	structure.Uint("smart_capability", 16),
	structure.Uint("error_logging_capability", 8),
	structure.Uint("vendor_specific_371", 8),
	structure.Uint("short_self_test_minutes", 8),
	structure.Uint("extended_self_test_minutes", 8),
	structure.Uint("conveyance_self_test_minutes", 8),
	structure.Uint("extended_self_test_minutes_word", 16),
	structure.Bytes("reserved", 9),
	structure.Bytes("vendor_specific", 125),
	structure.Uint("checksum", 8),
)

// ThresholdEntry is one 12-byte slot of the SMART READ THRESHOLDS page.
var ThresholdEntry = structure.MustDefine("smart_threshold", 12,
	structure.Uint("id", 8),
	structure.Uint("threshold", 8),
	structure.Bytes("reserved", 10),
)

// SmartThresholds is the SMART READ THRESHOLDS page.
var SmartThresholds = structure.MustDefine("smart_thresholds", PageLen,
	structure.Uint("version", 16),
	structure.Array("thresholds", ThresholdEntry, MaxAttributes),
	structure.Bytes("reserved", 149),
	structure.Uint("checksum", 8),
)
