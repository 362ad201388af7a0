package disk

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/osbuild/dualboot-images/pkg/datasizes"
)

const (
	// MaxPartitionID is the highest slot index of the ChromeOS GPT layout.
	MaxPartitionID = 12

	// DefaultFirstUsableSector is the head region reserved before the first
	// real partition.
	DefaultFirstUsableSector = 32768

	// DefaultReservedTrailingSectors is left unallocated at the end of
	// the device.
	DefaultReservedTrailingSectors = 24576

	// gptEntryArrayBytes is the size of the primary partition entry array,
	// 128 entries of 128 bytes.
	gptEntryArrayBytes = 128 * 128
)

// MinFirstUsableSector returns the first sector after the protective MBR,
// the GPT header and the primary entry array, 34 for 512 byte sectors.
func MinFirstUsableSector(sectorSize uint64) uint64 {
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}
	return 2 + BytesToSectors(gptEntryArrayBytes, sectorSize)
}

// PartitionSpec describes one partition to be placed by Plan.
type PartitionSpec struct {
	ID    int           `json:"id" yaml:"id" toml:"id"`
	Type  PartitionType `json:"type" yaml:"type" toml:"type"`
	Label string        `json:"label" yaml:"label" toml:"label"`

	// Size of the partition in bytes. Zero means the partition consumes
	// all space left on the device, minus the trailing reserve.
	Size datasizes.Size `json:"size" yaml:"size" toml:"size"`

	// ExtraPaddingSectors are skipped before the partition is aligned
	// and placed.
	ExtraPaddingSectors uint64         `json:"extra_padding_sectors,omitempty" yaml:"extra_padding_sectors,omitempty" toml:"extra_padding_sectors,omitempty"`
	Alignment           AlignmentClass `json:"alignment,omitempty" yaml:"alignment,omitempty" toml:"alignment,omitempty"`
}

// IsRemainingSpace returns true if the spec is the remaining-space
// sentinel.
func (s PartitionSpec) IsRemainingSpace() bool {
	return s.Size == 0
}

// PartitionDescriptor is a concrete, placed partition.
type PartitionDescriptor struct {
	ID          int           `json:"id" yaml:"id"`
	Type        PartitionType `json:"type" yaml:"type"`
	Label       string        `json:"label" yaml:"label"`
	StartSector uint64        `json:"start_sector" yaml:"start_sector"`
	SectorCount uint64        `json:"sector_count" yaml:"sector_count"`
}

// EndSector returns the first sector after the partition.
func (d PartitionDescriptor) EndSector() uint64 {
	return d.StartSector + d.SectorCount
}

// Geometry describes the device a plan is computed for. All values except
// SectorSize are in sectors.
type Geometry struct {
	TotalSectors            uint64 `json:"total_sectors" yaml:"total_sectors"`
	SectorSize              uint64 `json:"sector_size" yaml:"sector_size"`
	FirstUsableSector       uint64 `json:"first_usable_sector" yaml:"first_usable_sector"`
	ReservedTrailingSectors uint64 `json:"reserved_trailing_sectors" yaml:"reserved_trailing_sectors"`
}

// PartitionPlan is the result of Plan. Partitions are in placement order,
// which is not necessarily ascending by id.
type PartitionPlan struct {
	Geometry   Geometry              `json:"geometry" yaml:"geometry"`
	Partitions []PartitionDescriptor `json:"partitions" yaml:"partitions"`
}

// Find returns the descriptor with the given id, or nil.
func (p *PartitionPlan) Find(id int) *PartitionDescriptor {
	for idx := range p.Partitions {
		if p.Partitions[idx].ID == id {
			return &p.Partitions[idx]
		}
	}
	return nil
}

// WriteTable writes a human readable table of the plan to w.
func (p *PartitionPlan) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tLABEL\tTYPE\tSTART\tSECTORS\tSIZE\n")
	for _, d := range p.Partitions {
		size, err := SectorsToBytes(d.SectorCount, p.Geometry.SectorSize)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", d.ID, d.Label, d.Type, d.StartSector, d.SectorCount, datasizes.Format(size))
	}
	return tw.Flush()
}

// Plan places the given specs on a device with the given geometry.
//
// Specs are placed in declaration order, each one starting where the
// previous one ended, after optional padding and alignment. The order is
// part of the layout and is not sorted by id.
func Plan(specs []PartitionSpec, geo Geometry) (PartitionPlan, error) {
	if geo.SectorSize == 0 {
		geo.SectorSize = DefaultSectorSize
	}
	if err := validateSpecs(specs); err != nil {
		return PartitionPlan{}, err
	}

	plan := PartitionPlan{
		Geometry:   geo,
		Partitions: make([]PartitionDescriptor, 0, len(specs)),
	}

	cursor := geo.FirstUsableSector
	for _, spec := range specs {
		if spec.ExtraPaddingSectors > 0 {
			padded, err := addSectors(cursor, spec.ExtraPaddingSectors)
			if err != nil {
				return PartitionPlan{}, layoutErrorf(ErrOverflow, spec.ID, "padding of %d sectors at sector %d", spec.ExtraPaddingSectors, cursor)
			}
			cursor = padded
		}
		if spec.Alignment == ALIGN_PAGE {
			aligned := AlignUp(cursor, PageAlignmentSectors)
			if aligned < cursor {
				return PartitionPlan{}, layoutErrorf(ErrOverflow, spec.ID, "aligning sector %d", cursor)
			}
			cursor = aligned
		}

		var count uint64
		if spec.IsRemainingSpace() {
			used, err := addSectors(cursor, geo.ReservedTrailingSectors)
			if err != nil || used >= geo.TotalSectors {
				return PartitionPlan{}, layoutErrorf(ErrInsufficientSpace, spec.ID,
					"device has %d sectors, partition would start at %d with %d reserved", geo.TotalSectors, cursor, geo.ReservedTrailingSectors)
			}
			count = geo.TotalSectors - used
		} else {
			count = BytesToSectors(spec.Size.Uint64(), geo.SectorSize)
		}

		plan.Partitions = append(plan.Partitions, PartitionDescriptor{
			ID:          spec.ID,
			Type:        spec.Type,
			Label:       spec.Label,
			StartSector: cursor,
			SectorCount: count,
		})

		next, err := addSectors(cursor, count)
		if err != nil {
			return PartitionPlan{}, layoutErrorf(ErrOverflow, spec.ID, "%d sectors at sector %d", count, cursor)
		}
		cursor = next
	}

	if end, err := addSectors(cursor, geo.ReservedTrailingSectors); len(specs) > 0 && (err != nil || end > geo.TotalSectors) {
		last := plan.Partitions[len(plan.Partitions)-1]
		return PartitionPlan{}, layoutErrorf(ErrLayoutTooLarge, last.ID,
			"layout ends at sector %d but device has %d sectors with %d reserved", cursor, geo.TotalSectors, geo.ReservedTrailingSectors)
	}

	return plan, nil
}

func validateSpecs(specs []PartitionSpec) error {
	seen := make(map[int]bool, len(specs))
	remaining := 0
	for _, spec := range specs {
		if spec.ID < 1 || spec.ID > MaxPartitionID {
			return layoutErrorf(ErrInvalidID, spec.ID, "valid ids are 1..%d", MaxPartitionID)
		}
		if seen[spec.ID] {
			return &LayoutError{Kind: ErrDuplicateID, ID: spec.ID}
		}
		seen[spec.ID] = true
		if spec.Type == PART_NONE {
			return &LayoutError{Kind: ErrInvalidType, ID: spec.ID}
		}
		if spec.IsRemainingSpace() {
			remaining++
			if remaining > 1 {
				return &LayoutError{Kind: ErrMultipleRemaining, ID: spec.ID}
			}
		}
	}
	return nil
}
