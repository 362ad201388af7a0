package disk

import (
	"fmt"
	"math"
)

const (
	// DefaultSectorSize is the logical sector size assumed for images and
	// loop devices.
	DefaultSectorSize = 512

	// PageAlignmentSectors is the boundary, in sectors, that page aligned
	// partitions start on.
	PageAlignmentSectors = 4096
)

// BytesToSectors returns the number of sectors needed to hold the given
// number of bytes (ceiling division).
func BytesToSectors(size, sectorSize uint64) uint64 {
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}
	sectors := size / sectorSize
	if size%sectorSize != 0 {
		sectors++
	}
	return sectors
}

// SectorsToBytes converts the given number of sectors to bytes.
func SectorsToBytes(sectors, sectorSize uint64) (uint64, error) {
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}
	if sectors > math.MaxUint64/sectorSize {
		return 0, fmt.Errorf("%d sectors of %d bytes: %w", sectors, sectorSize, ErrOverflow)
	}
	return sectors * sectorSize, nil
}

// AlignUp will align the given position to the next multiple of boundary
// if not already aligned.
func AlignUp(position, boundary uint64) uint64 {
	if boundary == 0 || position%boundary == 0 {
		// already aligned: return unchanged
		return position
	}
	return position + boundary - position%boundary
}

func addSectors(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}
