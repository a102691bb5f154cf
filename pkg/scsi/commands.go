package scsi

// SCSI operation codes and ATA commands sent through ATA PASS-THROUGH(16).
const (
	OpInquiry          = 0x12
	OpATAPassThrough16 = 0x85

	ATAIdentifyDevice = 0xec
	ATASmart          = 0xb0

	SmartReadData       = 0xd0
	SmartReadThresholds = 0xd1

	// PageUnitSerial is the Unit Serial Number VPD page.
	PageUnitSerial = 0x80

	smartLBAMid  = 0x4f
	smartLBAHigh = 0xc2
)

// InquiryCDB builds a standard INQUIRY for allocLen bytes.
func InquiryCDB(allocLen uint16) []byte {
	cdb := make([]byte, 6)
	cdb[0] = OpInquiry
	cdb[3] = byte(allocLen >> 8)
	cdb[4] = byte(allocLen)
	return cdb
}

// InquiryVPDCDB builds an INQUIRY with EVPD set for page.
func InquiryVPDCDB(page byte, allocLen uint16) []byte {
	cdb := InquiryCDB(allocLen)
	cdb[1] = 0x01
	cdb[2] = page
	return cdb
}

func ataPassThrough(command byte) []byte {
	cdb := make([]byte, 16)
	cdb[0] = OpATAPassThrough16
	cdb[1] = 0x08 // ATA protocol (4 << 1, PIO data-in)
	cdb[2] = 0x0e // BYT_BLOK = 1, T_LENGTH = 2, T_DIR = 1
	cdb[6] = 0x01 // one 512-byte block, read from the sector count by T_LENGTH
	cdb[14] = command
	return cdb
}

// IdentifyCDB wraps ATA IDENTIFY DEVICE.
func IdentifyCDB() []byte {
	return ataPassThrough(ATAIdentifyDevice)
}

// SmartCDB wraps an ATA SMART sub-command such as SmartReadData.
func SmartCDB(feature byte) []byte {
	cdb := ataPassThrough(ATASmart)
	cdb[4] = feature
	cdb[10] = smartLBAMid
	cdb[12] = smartLBAHigh
	return cdb
}
