package disk_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/dualboot-images/pkg/datasizes"
	"github.com/osbuild/dualboot-images/pkg/disk"
)

func TestBytesToSectors(t *testing.T) {
	tests := []struct {
		size       uint64
		sectorSize uint64
		expected   uint64
	}{
		{0, 512, 0},
		{1, 512, 1},
		{511, 512, 1},
		{512, 512, 1},
		{513, 512, 2},
		{64 * datasizes.MiB, 512, 131072},
		{4 * datasizes.GiB, 512, 8388608},
		{4 * datasizes.GiB, 4096, 1048576},
		{4097, 4096, 2},
		{1, 0, 1},
		{math.MaxUint64, 512, math.MaxUint64/512 + 1},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, disk.BytesToSectors(tc.size, tc.sectorSize), "%d bytes / %d", tc.size, tc.sectorSize)
	}
}

func TestSectorsToBytes(t *testing.T) {
	b, err := disk.SectorsToBytes(131072, 512)
	require.NoError(t, err)
	assert.Equal(t, uint64(64*datasizes.MiB), b)

	b, err = disk.SectorsToBytes(8, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), b)

	_, err = disk.SectorsToBytes(math.MaxUint64/2, 512)
	assert.True(t, errors.Is(err, disk.ErrOverflow))
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		position uint64
		boundary uint64
		expected uint64
	}{
		{0, 4096, 0},
		{1, 4096, 4096},
		{4096, 4096, 4096},
		{4097, 4096, 8192},
		{40000, 4096, 40960},
		{4503555, 4096, 4505600},
		{4636672, 4096, 4636672},
		{123, 0, 123},
	}

	for _, tc := range tests {
		got := disk.AlignUp(tc.position, tc.boundary)
		assert.Equal(t, tc.expected, got, "align %d to %d", tc.position, tc.boundary)
		if tc.boundary > 0 {
			assert.Zero(t, got%tc.boundary)
			assert.GreaterOrEqual(t, got, tc.position)
			assert.Less(t, got-tc.position, tc.boundary)
		}
	}
}
