package disk

import (
	"fmt"
)

// PartitionType is the ChromeOS partition type of a slot, as understood by
// cgpt's "-t" option.
type PartitionType uint64

const (
	PART_NONE PartitionType = iota
	PART_EFI
	PART_KERNEL
	PART_ROOTFS
	PART_DATA
	PART_FIRMWARE
	PART_RESERVED
)

// GPT partition type GUIDs for the ChromeOS partition types.
const (
	EFISystemPartitionGUID = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"
	ChromeOSKernelGUID     = "FE3A2A5D-4F32-41A7-B725-ACCC3285A309"
	ChromeOSRootfsGUID     = "3CB8E202-3B7E-47DD-8A3C-7FF2A13CFCEC"
	BasicDataGUID          = "EBD0A0A2-B9E5-4433-87C0-68B6B72699C7"
	ChromeOSFirmwareGUID   = "CAB6E88E-ABF3-4102-A07A-D4BB9BE3C1D3"
	ChromeOSReservedGUID   = "2E0A753D-9E48-43B0-8337-B15192CB1B5E"
)

func (t PartitionType) String() string {
	switch t {
	case PART_NONE:
		return ""
	case PART_EFI:
		return "efi"
	case PART_KERNEL:
		return "kernel"
	case PART_ROOTFS:
		return "rootfs"
	case PART_DATA:
		return "data"
	case PART_FIRMWARE:
		return "firmware"
	case PART_RESERVED:
		return "reserved"
	default:
		panic(fmt.Sprintf("unknown or unsupported partition type with enum value %d", t))
	}
}

// GUID returns the GPT partition type GUID for the partition type.
func (t PartitionType) GUID() string {
	switch t {
	case PART_EFI:
		return EFISystemPartitionGUID
	case PART_KERNEL:
		return ChromeOSKernelGUID
	case PART_ROOTFS:
		return ChromeOSRootfsGUID
	case PART_DATA:
		return BasicDataGUID
	case PART_FIRMWARE:
		return ChromeOSFirmwareGUID
	case PART_RESERVED:
		return ChromeOSReservedGUID
	default:
		panic(fmt.Sprintf("no GUID for partition type with enum value %d", t))
	}
}

func NewPartitionType(s string) (PartitionType, error) {
	switch s {
	case "":
		return PART_NONE, nil
	case "efi":
		return PART_EFI, nil
	case "kernel":
		return PART_KERNEL, nil
	case "rootfs":
		return PART_ROOTFS, nil
	case "data":
		return PART_DATA, nil
	case "firmware":
		return PART_FIRMWARE, nil
	case "reserved":
		return PART_RESERVED, nil
	default:
		return PART_NONE, fmt.Errorf("unknown or unsupported partition type name: %s", s)
	}
}

func (t PartitionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *PartitionType) UnmarshalText(data []byte) error {
	pt, err := NewPartitionType(string(data))
	if err != nil {
		return err
	}
	*t = pt
	return nil
}

// AlignmentClass selects how the start of a partition is aligned.
type AlignmentClass uint64

const (
	ALIGN_NONE AlignmentClass = iota
	// ALIGN_PAGE rounds the start up to the next PageAlignmentSectors
	// boundary.
	ALIGN_PAGE
)

func (a AlignmentClass) String() string {
	switch a {
	case ALIGN_NONE:
		return "none"
	case ALIGN_PAGE:
		return "page"
	default:
		panic(fmt.Sprintf("unknown or unsupported alignment class with enum value %d", a))
	}
}

func NewAlignmentClass(s string) (AlignmentClass, error) {
	switch s {
	case "", "none":
		return ALIGN_NONE, nil
	case "page":
		return ALIGN_PAGE, nil
	default:
		return ALIGN_NONE, fmt.Errorf("unknown or unsupported alignment class name: %s", s)
	}
}

func (a AlignmentClass) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AlignmentClass) UnmarshalText(data []byte) error {
	ac, err := NewAlignmentClass(string(data))
	if err != nil {
		return err
	}
	*a = ac
	return nil
}
