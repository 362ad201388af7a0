package disk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osbuild/dualboot-images/pkg/disk"
)

func TestEnumPartitionType(t *testing.T) {
	enumMap := map[string]disk.PartitionType{
		"":         disk.PART_NONE,
		"efi":      disk.PART_EFI,
		"kernel":   disk.PART_KERNEL,
		"rootfs":   disk.PART_ROOTFS,
		"data":     disk.PART_DATA,
		"firmware": disk.PART_FIRMWARE,
		"reserved": disk.PART_RESERVED,
	}

	assert := assert.New(t)
	for name, num := range enumMap {
		pt, err := disk.NewPartitionType(name)
		assert.NoError(err)
		assert.Equal(num, pt)
		assert.Equal(name, pt.String())
	}

	// error test: bad value
	badPt := disk.PartitionType(7)
	assert.PanicsWithValue("unknown or unsupported partition type with enum value 7", func() { _ = badPt.String() })

	// error test: bad name
	_, err := disk.NewPartitionType("not-a-type")
	assert.EqualError(err, "unknown or unsupported partition type name: not-a-type")
}

func TestPartitionTypeGUID(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(disk.EFISystemPartitionGUID, disk.PART_EFI.GUID())
	assert.Equal(disk.ChromeOSKernelGUID, disk.PART_KERNEL.GUID())
	assert.Equal(disk.ChromeOSRootfsGUID, disk.PART_ROOTFS.GUID())
	assert.Equal(disk.BasicDataGUID, disk.PART_DATA.GUID())
	assert.Equal(disk.ChromeOSFirmwareGUID, disk.PART_FIRMWARE.GUID())
	assert.Equal(disk.ChromeOSReservedGUID, disk.PART_RESERVED.GUID())
	assert.Panics(func() { _ = disk.PART_NONE.GUID() })
}

func TestEnumAlignmentClass(t *testing.T) {
	assert := assert.New(t)

	ac, err := disk.NewAlignmentClass("")
	assert.NoError(err)
	assert.Equal(disk.ALIGN_NONE, ac)

	ac, err = disk.NewAlignmentClass("none")
	assert.NoError(err)
	assert.Equal(disk.ALIGN_NONE, ac)

	ac, err = disk.NewAlignmentClass("page")
	assert.NoError(err)
	assert.Equal(disk.ALIGN_PAGE, ac)
	assert.Equal("page", ac.String())

	badAc := disk.AlignmentClass(2)
	assert.PanicsWithValue("unknown or unsupported alignment class with enum value 2", func() { _ = badAc.String() })

	_, err = disk.NewAlignmentClass("cache-line")
	assert.EqualError(err, "unknown or unsupported alignment class name: cache-line")
}
