package device

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/shirou/gopsutil/v3/disk"
)

// wholeDisk matches kernel names of whole SCSI and NVMe disks, not their
// partitions.
var wholeDisk = regexp.MustCompile(`^(sd[a-z]+|nvme[0-9]+n[0-9]+)$`)

// ioCounters is replaced in tests.
var ioCounters = disk.IOCounters

// List returns the paths of the whole disks the kernel reports, sorted.
func List() ([]string, error) {
	counters, err := ioCounters()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate disks: %w", err)
	}

	var paths []string
	for name := range counters {
		if wholeDisk.MatchString(name) {
			paths = append(paths, "/dev/"+name)
		}
	}
	sort.Strings(paths)
	return paths, nil
}
