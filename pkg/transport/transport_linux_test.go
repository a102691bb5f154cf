//go:build linux

package transport

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestErrnoMapping(t *testing.T) {
	tests := []struct {
		errno unix.Errno
		want  Kind
	}{
		{unix.ENOTTY, NotSupported},
		{unix.EINVAL, NotSupported},
		{unix.EOPNOTSUPP, NotSupported},
		{unix.EACCES, PermissionDenied},
		{unix.EPERM, PermissionDenied},
		{unix.EBUSY, DeviceBusy},
		{unix.EAGAIN, DeviceBusy},
		{unix.EIO, IOFailure},
		{unix.ENODEV, IOFailure},
	}

	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			err := osError("ioctl", tt.errno)
			var te *Error
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.want, te.Kind)
			assert.Equal(t, uint32(tt.errno), te.Status)
			assert.True(t, errors.Is(err, tt.errno))
		})
	}
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "sdz"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestRegularFileIsNotAPassThroughDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o600))

	tr, err := Open(path)
	require.NoError(t, err)
	defer tr.Close()

	class, err := tr.Probe()
	require.NoError(t, err)
	assert.Equal(t, Unknown, class)

	_, err = tr.Send(Request{Protocol: SCSI, Command: []byte{0x12, 0, 0, 0, 36, 0}, Length: 36})
	assert.True(t, IsKind(err, NotSupported), "got %v", err)

	_, err = tr.Send(Request{Protocol: NVMeAdmin, Command: make([]byte, 8), Length: 512})
	assert.True(t, IsKind(err, NotSupported), "got %v", err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
}

type ioctlResult struct {
	r   uintptr
	err error
}

// stubIoctl answers ioctls by request number. Unlisted requests fail with
// ENOTTY, as they do on a file that is not a pass-through device.
func stubIoctl(t *testing.T, answers map[uint]ioctlResult) {
	t.Helper()
	orig := sysIoctl
	sysIoctl = func(fd int, req uint, arg uintptr) (uintptr, error) {
		if a, ok := answers[req]; ok {
			return a.r, a.err
		}
		return 0, unix.ENOTTY
	}
	t.Cleanup(func() { sysIoctl = orig })
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		answers map[uint]ioctlResult
		want    Class
		denied  bool
	}{
		{
			name:    "namespace block device",
			answers: map[uint]ioctlResult{nvmeIoctlID: {r: 1}},
			want:    ClassNVMe,
		},
		{
			name:    "controller character device",
			answers: map[uint]ioctlResult{nvmeIoctlAdminCmd: {}},
			want:    ClassNVMe,
		},
		{
			name:    "controller answers with an NVMe status",
			answers: map[uint]ioctlResult{nvmeIoctlAdminCmd: {r: 0x4002}},
			want:    ClassNVMe,
		},
		{
			name:    "controller without admin rights",
			answers: map[uint]ioctlResult{nvmeIoctlAdminCmd: {err: unix.EACCES}},
			want:    Unknown,
			denied:  true,
		},
		{
			name:    "sg without rights",
			answers: map[uint]ioctlResult{sgGetVersionNum: {err: unix.EPERM}},
			want:    Unknown,
			denied:  true,
		},
		{
			name:    "sg driver too old",
			answers: map[uint]ioctlResult{sgGetVersionNum: {}},
			want:    Unknown,
		},
		{
			name:    "admin command rejected",
			answers: map[uint]ioctlResult{nvmeIoctlAdminCmd: {err: unix.EINVAL}},
			want:    Unknown,
		},
		{
			name: "neither",
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubIoctl(t, tt.answers)
			tr := &linuxTransport{path: "/dev/test", fd: -1}

			class, err := tr.Probe()
			assert.Equal(t, tt.want, class)
			if tt.denied {
				assert.True(t, IsKind(err, PermissionDenied), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestProbeControllerSendsIdentify(t *testing.T) {
	var cmd []byte
	orig := sysIoctl
	sysIoctl = func(fd int, req uint, arg uintptr) (uintptr, error) {
		if req != nvmeIoctlAdminCmd {
			return 0, unix.ENOTTY
		}
		cmd = append([]byte(nil), unsafe.Slice((*byte)(unsafe.Pointer(arg)), nvmePassthruLen)...)
		return 0, nil
	}
	t.Cleanup(func() { sysIoctl = orig })

	tr := &linuxTransport{path: "/dev/nvme0", fd: -1}
	class, err := tr.Probe()
	require.NoError(t, err)
	assert.Equal(t, ClassNVMe, class)

	require.Len(t, cmd, nvmePassthruLen)
	assert.Equal(t, byte(nvmeAdminIdentify), cmd[0])
	assert.Equal(t, uint32(nvmeCNSController), binary.LittleEndian.Uint32(cmd[nvmeCDW10Offset:]))
	assert.Equal(t, uint32(nvmeIdentifyLength), binary.LittleEndian.Uint32(cmd[nvmeDataLenOffset:]))
}
