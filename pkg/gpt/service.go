// Package gpt writes a planned partition layout to a disk image through a
// partition table service.
package gpt

import (
	"context"

	"github.com/osbuild/dualboot-images/pkg/disk"
)

// Partition is a single "add partition" directive. Start and Count are in
// sectors.
type Partition struct {
	ID    int
	Start uint64
	Count uint64
	Type  disk.PartitionType
	Label string
}

func partitionFromDescriptor(d disk.PartitionDescriptor) Partition {
	return Partition{
		ID:    d.ID,
		Start: d.StartSector,
		Count: d.SectorCount,
		Type:  d.Type,
		Label: d.Label,
	}
}

// Service is a partition table backend operating on a device or image
// path.
type Service interface {
	// Create writes a new, empty GPT to the device.
	Create(ctx context.Context, device string) error
	AddPartition(ctx context.Context, device string, p Partition) error
	SetKernelAttributes(ctx context.Context, device string, id int, attrs KernelAttributes) error
	// SetBootPartition records the GUID of partition id as boot target in
	// the protective MBR and clears the legacy boot attribute of the entry.
	SetBootPartition(ctx context.Context, device string, id int) error
	// PartitionSectors returns the size of partition id in sectors.
	PartitionSectors(ctx context.Context, device string, id int) (uint64, error)
}

// Validator is implemented by services that can check that a device
// carries a readable GPT.
type Validator interface {
	Validate(ctx context.Context, device string) error
}
