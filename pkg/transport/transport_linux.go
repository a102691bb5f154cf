//go:build linux

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	sgIO              = 0x2285
	sgGetVersionNum   = 0x2282
	sgDxferFromDev    = -3
	sgInfoOkMask      = 0x1
	sgTimeoutMillis   = 20000
	senseBufLen       = 32
	nvmeIoctlID       = 0x4E40
	nvmeIoctlAdminCmd = 0xC0484E41

	// Size of struct nvme_passthru_cmd in <linux/nvme_ioctl.h>.
	nvmePassthruLen    = 72
	nvmeAddrOffset     = 24
	nvmeDataLenOffset  = 36
	nvmeTimeoutOffset  = 64
	nvmeDefaultTimeout = 20000
	minSGVersion       = 30000

	nvmeAdminIdentify  = 0x06
	nvmeCDW10Offset    = 40
	nvmeCNSController  = 0x01
	nvmeIdentifyLength = 4096
)

// sgIoHdr is sg_io_hdr_t from <scsi/sg.h>.
type sgIoHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSbLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         uintptr
	cmdp           uintptr
	sbp            uintptr
	timeout        uint32
	flags          uint32
	packID         int32
	usrPtr         uintptr
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

type linuxTransport struct {
	path string
	fd   int
	once sync.Once
	err  error
}

// Open opens path for pass-through commands. A missing path yields an error
// matching fs.ErrNotExist.
func Open(path string) (Transport, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return &linuxTransport{path: path, fd: fd}, nil
}

func ioctl(fd int, req uint, arg uintptr) (uintptr, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), arg)
	if errno != 0 {
		return r, errno
	}
	return r, nil
}

// sysIoctl issues every ioctl made by the Linux transport.
var sysIoctl = ioctl

// Probe asks the kernel which pass-through the handle accepts.
// NVME_IOCTL_ID only answers on namespace block devices, so a controller
// character device such as /dev/nvme0 is recognised by an admin Identify.
func (t *linuxTransport) Probe() (Class, error) {
	if _, err := sysIoctl(t.fd, nvmeIoctlID, 0); err == nil {
		return ClassNVMe, nil
	}

	var version int32
	_, err := sysIoctl(t.fd, sgGetVersionNum, uintptr(unsafe.Pointer(&version)))
	if err == nil && version >= minSGVersion {
		return ClassSCSI, nil
	}
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		return Unknown, osError("probe", err)
	}

	_, err = t.identifyController()
	switch {
	case err == nil || !isErrno(err):
		// The controller answered, possibly with an NVMe status.
		return ClassNVMe, nil
	case IsKind(err, PermissionDenied):
		return Unknown, osError("probe", errors.Unwrap(err))
	}
	return Unknown, nil
}

func (t *linuxTransport) identifyController() (Response, error) {
	cmd := make([]byte, nvmePassthruLen)
	cmd[0] = nvmeAdminIdentify
	binary.LittleEndian.PutUint32(cmd[nvmeCDW10Offset:], nvmeCNSController)
	return t.sendNVMe(Request{Protocol: NVMeAdmin, Command: cmd, Length: nvmeIdentifyLength})
}

// isErrno reports whether err came from the ioctl itself rather than from
// the device.
func isErrno(err error) bool {
	var errno unix.Errno
	return errors.As(err, &errno)
}

func (t *linuxTransport) Send(req Request) (Response, error) {
	if err := checkRequest(req); err != nil {
		return Response{}, err
	}

	switch req.Protocol {
	case SCSI:
		return t.sendSCSI(req)
	case NVMeAdmin:
		return t.sendNVMe(req)
	default:
		return Response{}, &Error{Kind: NotSupported, Op: "send", Err: fmt.Errorf("unknown protocol %v", req.Protocol)}
	}
}

func (t *linuxTransport) sendSCSI(req Request) (Response, error) {
	if len(req.Command) > 16 {
		return Response{}, &Error{Kind: NotSupported, Op: "sg_io", Err: fmt.Errorf("cdb of %d bytes", len(req.Command))}
	}

	cdb := make([]byte, len(req.Command))
	copy(cdb, req.Command)
	data := make([]byte, req.Length)
	sense := make([]byte, senseBufLen)

	hdr := sgIoHdr{
		interfaceID:    'S',
		dxferDirection: sgDxferFromDev,
		timeout:        sgTimeoutMillis,
		cmdLen:         uint8(len(cdb)),
		mxSbLen:        uint8(len(sense)),
		dxferLen:       uint32(len(data)),
		dxferp:         uintptr(unsafe.Pointer(&data[0])),
		cmdp:           uintptr(unsafe.Pointer(&cdb[0])),
		sbp:            uintptr(unsafe.Pointer(&sense[0])),
	}

	_, err := sysIoctl(t.fd, sgIO, uintptr(unsafe.Pointer(&hdr)))
	runtime.KeepAlive(cdb)
	runtime.KeepAlive(data)
	runtime.KeepAlive(sense)
	if err != nil {
		return Response{}, osError("sg_io", err)
	}

	if hdr.info&sgInfoOkMask != 0 {
		status := uint32(hdr.status) | uint32(hdr.hostStatus)<<8 | uint32(hdr.driverStatus)<<16
		cause := fmt.Errorf("SCSI status: %#02x, host status: %#02x, driver status: %#02x",
			hdr.status, hdr.hostStatus, hdr.driverStatus)
		return Response{}, &Error{Kind: IOFailure, Op: "sg_io", Status: status, Err: cause}
	}

	return Response{Data: data}, nil
}

func (t *linuxTransport) sendNVMe(req Request) (Response, error) {
	if len(req.Command) != nvmePassthruLen {
		return Response{}, &Error{Kind: NotSupported, Op: "nvme_admin", Err: fmt.Errorf("command of %d bytes", len(req.Command))}
	}

	cmd := make([]byte, nvmePassthruLen)
	copy(cmd, req.Command)
	data := make([]byte, req.Length)

	binary.LittleEndian.PutUint64(cmd[nvmeAddrOffset:], uint64(uintptr(unsafe.Pointer(&data[0]))))
	binary.LittleEndian.PutUint32(cmd[nvmeDataLenOffset:], uint32(len(data)))
	if binary.LittleEndian.Uint32(cmd[nvmeTimeoutOffset:]) == 0 {
		binary.LittleEndian.PutUint32(cmd[nvmeTimeoutOffset:], nvmeDefaultTimeout)
	}

	r, err := sysIoctl(t.fd, nvmeIoctlAdminCmd, uintptr(unsafe.Pointer(&cmd[0])))
	runtime.KeepAlive(cmd)
	runtime.KeepAlive(data)
	if err != nil {
		return Response{}, osError("nvme_admin", err)
	}
	if r != 0 {
		cause := fmt.Errorf("NVMe status: %#x", r)
		return Response{}, &Error{Kind: IOFailure, Op: "nvme_admin", Status: uint32(r), Err: cause}
	}

	return Response{Data: data}, nil
}

func (t *linuxTransport) Close() error {
	t.once.Do(func() {
		t.err = unix.Close(t.fd)
	})
	return t.err
}

// osError maps an errno to a transport Error.
func osError(op string, err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return &Error{Kind: IOFailure, Op: op, Err: err}
	}
	return &Error{Kind: kindOf(errno), Op: op, Status: uint32(errno), Err: err}
}

func kindOf(errno unix.Errno) Kind {
	switch errno {
	case unix.ENOTTY, unix.EINVAL, unix.EOPNOTSUPP:
		return NotSupported
	case unix.EACCES, unix.EPERM:
		return PermissionDenied
	case unix.EBUSY, unix.EAGAIN:
		return DeviceBusy
	default:
		return IOFailure
	}
}
