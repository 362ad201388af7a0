package image

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/osbuild/dualboot-images/pkg/disk"
)

// BlockDeviceSize is a mockable lookup of the size of a block device in
// bytes.
var BlockDeviceSize = func(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, fmt.Errorf("BLKGETSIZE64 on %s: %w", path, errno)
	}
	return size, nil
}

// MediaSectors returns the number of whole sectors of the image file or
// block device at path.
func MediaSectors(fs afero.Fs, path string, sectorSize uint64) (uint64, error) {
	if sectorSize == 0 {
		sectorSize = disk.DefaultSectorSize
	}
	fi, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}

	var size uint64
	switch {
	case fi.Mode().IsRegular():
		size = uint64(fi.Size())
	case fi.Mode()&os.ModeDevice != 0:
		size, err = BlockDeviceSize(path)
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("%s is neither a regular file nor a block device", path)
	}
	return size / sectorSize, nil
}
