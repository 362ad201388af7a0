package disk

import (
	"fmt"
	"sort"

	"github.com/osbuild/dualboot-images/pkg/datasizes"
)

const DefaultLayoutName = "chromeos-v1"

// KernelPriority holds the boot selection attributes of a kernel slot.
type KernelPriority struct {
	ID         int  `json:"id" yaml:"id" toml:"id"`
	Successful bool `json:"successful" yaml:"successful" toml:"successful"`
	Tries      int  `json:"tries" yaml:"tries" toml:"tries"`
	Priority   int  `json:"priority" yaml:"priority" toml:"priority"`
}

// CopyRule describes where the contents of destination partition ID come
// from. Exactly one of Partition and File is set.
type CopyRule struct {
	ID int `json:"id" yaml:"id" toml:"id"`
	// Partition is the id of the source partition on the recovery image.
	Partition int `json:"partition,omitempty" yaml:"partition,omitempty" toml:"partition,omitempty"`
	// File is a file name relative to the assets directory.
	File string `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
	// InsecureFile replaces File when secure boot is disabled.
	InsecureFile string `json:"insecure_file,omitempty" yaml:"insecure_file,omitempty" toml:"insecure_file,omitempty"`
}

// CopyTable is the static source to destination remapping of a layout.
// Destination ids without a rule are left empty.
type CopyTable struct {
	Rules []CopyRule `json:"rules" yaml:"rules" toml:"rules"`
	// Skip lists slots that are intentionally left empty, even if a rule
	// exists for them.
	Skip []int `json:"skip,omitempty" yaml:"skip,omitempty" toml:"skip,omitempty"`
}

// Layout is a named, versioned partition layout: the ordered partition
// specs plus the fixed post-processing and copy tables that go with them.
type Layout struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Version int    `json:"version" yaml:"version" toml:"version"`

	SectorSize              uint64 `json:"sector_size,omitempty" yaml:"sector_size,omitempty" toml:"sector_size,omitempty"`
	FirstUsableSector       uint64 `json:"first_usable_sector" yaml:"first_usable_sector" toml:"first_usable_sector"`
	ReservedTrailingSectors uint64 `json:"reserved_trailing_sectors" yaml:"reserved_trailing_sectors" toml:"reserved_trailing_sectors"`

	Partitions       []PartitionSpec  `json:"partitions" yaml:"partitions" toml:"partitions"`
	KernelPriorities []KernelPriority `json:"kernel_priorities,omitempty" yaml:"kernel_priorities,omitempty" toml:"kernel_priorities,omitempty"`
	// BootPartition is marked as the boot partition in the protective
	// MBR. Zero means none.
	BootPartition int `json:"boot_partition,omitempty" yaml:"boot_partition,omitempty" toml:"boot_partition,omitempty"`

	Copy CopyTable `json:"copy" yaml:"copy" toml:"copy"`
}

// Geometry returns the geometry of a device with totalSectors sectors
// using the layout's reserves.
func (l *Layout) Geometry(totalSectors uint64) Geometry {
	sectorSize := l.SectorSize
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}
	return Geometry{
		TotalSectors:            totalSectors,
		SectorSize:              sectorSize,
		FirstUsableSector:       l.FirstUsableSector,
		ReservedTrailingSectors: l.ReservedTrailingSectors,
	}
}

// Plan computes the partition plan of the layout for a device with
// totalSectors sectors.
func (l *Layout) Plan(totalSectors uint64) (PartitionPlan, error) {
	return Plan(l.Partitions, l.Geometry(totalSectors))
}

// Validate checks that the partitions start after the GPT structures and
// that the post-processing and copy tables only refer to partitions the
// layout defines.
func (l *Layout) Validate() error {
	if first := MinFirstUsableSector(l.SectorSize); l.FirstUsableSector < first {
		return fmt.Errorf("layout %s: first usable sector %d overlaps the partition table, must be at least %d", l.Name, l.FirstUsableSector, first)
	}
	if err := validateSpecs(l.Partitions); err != nil {
		return fmt.Errorf("layout %s: %w", l.Name, err)
	}
	defined := make(map[int]PartitionType, len(l.Partitions))
	for _, p := range l.Partitions {
		defined[p.ID] = p.Type
	}

	for _, kp := range l.KernelPriorities {
		pt, ok := defined[kp.ID]
		if !ok {
			return fmt.Errorf("layout %s: kernel priority for undefined partition %d", l.Name, kp.ID)
		}
		if pt != PART_KERNEL {
			return fmt.Errorf("layout %s: kernel priority for %s partition %d", l.Name, pt, kp.ID)
		}
		if kp.Tries < 0 || kp.Tries > 15 || kp.Priority < 0 || kp.Priority > 15 {
			return fmt.Errorf("layout %s: kernel partition %d: tries and priority must be in 0..15", l.Name, kp.ID)
		}
	}
	if l.BootPartition != 0 {
		if _, ok := defined[l.BootPartition]; !ok {
			return fmt.Errorf("layout %s: boot partition %d is not defined", l.Name, l.BootPartition)
		}
	}

	seen := map[int]bool{}
	for _, r := range l.Copy.Rules {
		if _, ok := defined[r.ID]; !ok {
			return fmt.Errorf("layout %s: copy rule for undefined partition %d", l.Name, r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("layout %s: more than one copy rule for partition %d", l.Name, r.ID)
		}
		seen[r.ID] = true
		if (r.Partition == 0) == (r.File == "") {
			return fmt.Errorf("layout %s: copy rule for partition %d needs exactly one of partition or file", l.Name, r.ID)
		}
		if r.Partition < 0 || r.Partition > MaxPartitionID {
			return fmt.Errorf("layout %s: copy rule for partition %d: source partition %d out of range", l.Name, r.ID, r.Partition)
		}
	}
	for _, id := range l.Copy.Skip {
		if id < 1 || id > MaxPartitionID {
			return fmt.Errorf("layout %s: skipped partition %d out of range", l.Name, id)
		}
	}
	return nil
}

// Clone returns a deep copy of the layout.
func (l Layout) Clone() Layout {
	clone := l
	clone.Partitions = append([]PartitionSpec(nil), l.Partitions...)
	clone.KernelPriorities = append([]KernelPriority(nil), l.KernelPriorities...)
	clone.Copy.Rules = append([]CopyRule(nil), l.Copy.Rules...)
	clone.Copy.Skip = append([]int(nil), l.Copy.Skip...)
	return clone
}

var builtinLayouts = map[string]Layout{
	// The ChromeOS base table as written by the recovery installer, with
	// ROOT-C and the EFI system partition taken from standalone files.
	"chromeos-v1": {
		Name:                    "chromeos-v1",
		Version:                 1,
		SectorSize:              DefaultSectorSize,
		FirstUsableSector:       DefaultFirstUsableSector,
		ReservedTrailingSectors: DefaultReservedTrailingSectors,
		Partitions: []PartitionSpec{
			{ID: 11, Type: PART_FIRMWARE, Label: "RWFW", Size: 8 * datasizes.MiB},
			{ID: 6, Type: PART_KERNEL, Label: "KERN-C", Size: 1},
			{ID: 7, Type: PART_ROOTFS, Label: "ROOT-C", Size: 1 * datasizes.GiB},
			{ID: 9, Type: PART_RESERVED, Label: "reserved", Size: 1},
			{ID: 10, Type: PART_RESERVED, Label: "reserved", Size: 1},
			{ID: 2, Type: PART_KERNEL, Label: "KERN-A", Size: 64 * datasizes.MiB, ExtraPaddingSectors: 2062336},
			{ID: 4, Type: PART_KERNEL, Label: "KERN-B", Size: 64 * datasizes.MiB},
			{ID: 8, Type: PART_DATA, Label: "OEM", Size: 16 * datasizes.MiB},
			{ID: 12, Type: PART_EFI, Label: "EFI-SYSTEM", Size: 64 * datasizes.MiB, Alignment: ALIGN_PAGE},
			{ID: 5, Type: PART_ROOTFS, Label: "ROOT-B", Size: 4 * datasizes.GiB, Alignment: ALIGN_PAGE},
			{ID: 3, Type: PART_ROOTFS, Label: "ROOT-A", Size: 4 * datasizes.GiB},
			{ID: 1, Type: PART_DATA, Label: "STATE"},
		},
		KernelPriorities: []KernelPriority{
			{ID: 2, Successful: false, Tries: 15, Priority: 15},
			{ID: 4, Successful: false, Tries: 15, Priority: 0},
			{ID: 6, Successful: false, Tries: 15, Priority: 0},
		},
		BootPartition: 12,
		Copy: CopyTable{
			Rules: []CopyRule{
				{ID: 1, Partition: 1},
				{ID: 2, Partition: 4},
				{ID: 3, Partition: 3},
				{ID: 4, Partition: 4},
				{ID: 5, Partition: 3},
				{ID: 7, File: "rootc.img"},
				{ID: 8, Partition: 8},
				{ID: 12, File: "efi_secure.img", InsecureFile: "efi_legacy.img"},
			},
			Skip: []int{6, 9, 10, 11},
		},
	},
	// Minimal brunch layout: EFI, one kernel slot and both root slots.
	"brunch-minimal-v1": {
		Name:                    "brunch-minimal-v1",
		Version:                 1,
		SectorSize:              DefaultSectorSize,
		FirstUsableSector:       2048,
		ReservedTrailingSectors: 2048,
		Partitions: []PartitionSpec{
			{ID: 12, Type: PART_EFI, Label: "EFI-SYSTEM", Size: 64 * datasizes.MiB},
			{ID: 7, Type: PART_KERNEL, Label: "KERN-C", Size: 64 * datasizes.MiB},
			{ID: 3, Type: PART_ROOTFS, Label: "ROOT-A", Size: 4 * datasizes.GiB},
			{ID: 5, Type: PART_ROOTFS, Label: "ROOT-B", Size: 4 * datasizes.GiB},
			{ID: 1, Type: PART_DATA, Label: "STATE"},
		},
		Copy: CopyTable{
			Rules: []CopyRule{
				{ID: 3, Partition: 3},
				{ID: 5, Partition: 5},
				{ID: 12, Partition: 12},
			},
		},
	},
}

// GetLayout returns a copy of the built-in layout with the given name.
func GetLayout(name string) (Layout, error) {
	l, ok := builtinLayouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("unknown layout %q, available layouts: %v", name, LayoutNames())
	}
	return l.Clone(), nil
}

// LayoutNames returns the sorted names of all built-in layouts.
func LayoutNames() []string {
	names := make([]string, 0, len(builtinLayouts))
	for name := range builtinLayouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
