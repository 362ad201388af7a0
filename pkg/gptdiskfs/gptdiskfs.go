// Package gptdiskfs implements gpt.Service in pure Go with go-diskfs, for
// hosts without cgpt.
//
// Every directive reads the table, changes it and writes it back, so the
// service itself is stateless. Partition ids are GPT entry slots: id N is
// entry N-1 of the partition array, and unused slots are written as empty
// entries.
package gptdiskfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	diskgpt "github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/osbuild/dualboot-images/pkg/gpt"
)

// MinEntries is the number of slots always present in a written table.
const MinEntries = 12

// bootGUIDOffset is the position of the boot partition GUID in the boot
// code area of the protective MBR, where cgpt and the firmware keep it.
const bootGUIDOffset = 424

// Namespace seeds the name based disk and partition GUIDs, so writing the
// same plan to the same path twice produces identical tables.
var Namespace = uuid.MustParse("5e0f2c1b-7a43-4d7e-9b61-3c2a8d4f0e95")

type Service struct{}

var _ gpt.Service = Service{}
var _ gpt.Validator = Service{}

func New() Service {
	return Service{}
}

// Entry is a used slot of a table as read from disk.
type Entry struct {
	ID         int
	Start      uint64
	Sectors    uint64
	Type       string
	Label      string
	GUID       string
	Attributes uint64
}

type table struct {
	d     *disk.Disk
	gpt   *diskgpt.Table
	slots []*diskgpt.Partition
	// bootGUID replaces the boot partition GUID of the protective MBR on
	// write, nil keeps the one on disk.
	bootGUID []byte
}

func (t *table) close() {
	if err := t.d.File.Close(); err != nil {
		logrus.Warnf("cannot close %s: %v", t.d.File.Name(), err)
	}
}

func (t *table) slot(id int) (*diskgpt.Partition, error) {
	if id < 1 || id > len(t.slots) || t.slots[id-1].Type == diskgpt.Unused {
		return nil, fmt.Errorf("partition %d not found on %s", id, t.d.File.Name())
	}
	return t.slots[id-1], nil
}

func (t *table) write() error {
	bootGUID := t.bootGUID
	if bootGUID == nil {
		var err error
		if bootGUID, err = readBootGUID(t.d.File); err != nil {
			return fmt.Errorf("cannot read boot partition of %s: %w", t.d.File.Name(), err)
		}
	}

	t.gpt.Partitions = t.slots
	if err := t.d.Partition(t.gpt); err != nil {
		return err
	}
	// go-diskfs rewrites the protective MBR, put the boot GUID back
	if _, err := t.d.File.WriteAt(bootGUID, bootGUIDOffset); err != nil {
		return fmt.Errorf("cannot write boot partition of %s: %w", t.d.File.Name(), err)
	}
	return nil
}

func readBootGUID(f io.ReaderAt) ([]byte, error) {
	b := make([]byte, 16)
	if _, err := f.ReadAt(b, bootGUIDOffset); err != nil {
		return nil, err
	}
	return b, nil
}

// mixedEndian converts between the textual byte order of a GUID and the
// on-disk one, where the first three fields are little endian. The
// conversion is its own inverse.
func mixedEndian(b []byte) []byte {
	out := bytes.Clone(b)
	for _, field := range [][2]int{{0, 4}, {4, 6}, {6, 8}} {
		for i, j := field[0], field[1]-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func unusedSlots(n int) []*diskgpt.Partition {
	slots := make([]*diskgpt.Partition, n)
	for idx := range slots {
		slots[idx] = &diskgpt.Partition{Type: diskgpt.Unused}
	}
	return slots
}

func partitionGUID(device string, id int) string {
	return strings.ToUpper(uuid.NewSHA1(Namespace, []byte(fmt.Sprintf("%s:%d", device, id))).String())
}

func open(device string, mode diskfs.OpenModeOption) (*table, error) {
	d, err := diskfs.Open(device, diskfs.WithOpenMode(mode))
	if err != nil {
		return nil, err
	}
	t := &table{d: d}

	pt, err := d.GetPartitionTable()
	if err != nil {
		t.close()
		return nil, fmt.Errorf("cannot read partition table of %s: %w", device, err)
	}
	gt, ok := pt.(*diskgpt.Table)
	if !ok {
		t.close()
		return nil, fmt.Errorf("%s has a %s partition table, expected gpt", device, pt.Type())
	}
	t.gpt = gt

	// go-diskfs drops empty entries when reading, find out which slots the
	// remaining entries came from
	used, err := usedSlots(d.File, int(d.LogicalBlocksize))
	if err != nil {
		t.close()
		return nil, fmt.Errorf("cannot read partition entries of %s: %w", device, err)
	}
	if len(used) != len(gt.Partitions) {
		t.close()
		return nil, fmt.Errorf("partition entries of %s are inconsistent: %d used slots, %d partitions", device, len(used), len(gt.Partitions))
	}

	n := MinEntries
	if len(used) > 0 && used[len(used)-1] > n {
		n = used[len(used)-1]
	}
	t.slots = unusedSlots(n)
	for idx, id := range used {
		t.slots[id-1] = gt.Partitions[idx]
	}
	return t, nil
}

// usedSlots returns the 1-based indexes of the non-empty entries of the
// primary partition array.
func usedSlots(f io.ReaderAt, sectorSize int) ([]int, error) {
	header := make([]byte, 92)
	if _, err := f.ReadAt(header, int64(sectorSize)); err != nil {
		return nil, err
	}
	firstLBA := binary.LittleEndian.Uint64(header[72:80])
	count := int(binary.LittleEndian.Uint32(header[80:84]))
	size := int(binary.LittleEndian.Uint32(header[84:88]))
	if size < diskgpt.PartitionEntrySize || count > 1024 {
		return nil, fmt.Errorf("unsupported partition array of %d entries of %d bytes", count, size)
	}

	array := make([]byte, count*size)
	if _, err := f.ReadAt(array, int64(firstLBA)*int64(sectorSize)); err != nil {
		return nil, err
	}
	empty := make([]byte, 16)
	var used []int
	for idx := 0; idx < count; idx++ {
		if !bytes.Equal(array[idx*size:idx*size+16], empty) {
			used = append(used, idx+1)
		}
	}
	return used, nil
}

func (Service) Create(ctx context.Context, device string) error {
	d, err := diskfs.Open(device, diskfs.WithOpenMode(diskfs.ReadWriteExclusive))
	if err != nil {
		return err
	}
	t := &table{
		d: d,
		gpt: &diskgpt.Table{
			LogicalSectorSize:  int(d.LogicalBlocksize),
			PhysicalSectorSize: int(d.PhysicalBlocksize),
			GUID:               strings.ToUpper(uuid.NewSHA1(Namespace, []byte(device)).String()),
			ProtectiveMBR:      true,
		},
		slots:    unusedSlots(MinEntries),
		bootGUID: make([]byte, 16),
	}
	defer t.close()
	return t.write()
}

func (Service) AddPartition(ctx context.Context, device string, p gpt.Partition) error {
	if p.ID < 1 || p.ID > 128 {
		return fmt.Errorf("partition id %d out of range", p.ID)
	}
	if p.Count == 0 {
		return fmt.Errorf("partition %d has no sectors", p.ID)
	}

	t, err := open(device, diskfs.ReadWriteExclusive)
	if err != nil {
		return err
	}
	defer t.close()

	if p.ID > len(t.slots) {
		t.slots = append(t.slots, unusedSlots(p.ID-len(t.slots))...)
	}
	sectorSize := uint64(t.gpt.LogicalSectorSize)
	t.slots[p.ID-1] = &diskgpt.Partition{
		Start: p.Start,
		End:   p.Start + p.Count - 1,
		Size:  p.Count * sectorSize,
		Type:  diskgpt.Type(p.Type.GUID()),
		Name:  p.Label,
		GUID:  partitionGUID(device, p.ID),
	}
	return t.write()
}

func (Service) SetKernelAttributes(ctx context.Context, device string, id int, attrs gpt.KernelAttributes) error {
	t, err := open(device, diskfs.ReadWriteExclusive)
	if err != nil {
		return err
	}
	defer t.close()

	p, err := t.slot(id)
	if err != nil {
		return err
	}
	bits, err := attrs.Apply(p.Attributes)
	if err != nil {
		return err
	}
	p.Attributes = bits
	return t.write()
}

// SetBootPartition stores the unique GUID of the partition in the
// protective MBR, like "cgpt boot -i", and clears its legacy boot
// attribute. Unlike cgpt no boot code is installed.
func (Service) SetBootPartition(ctx context.Context, device string, id int) error {
	t, err := open(device, diskfs.ReadWriteExclusive)
	if err != nil {
		return err
	}
	defer t.close()

	p, err := t.slot(id)
	if err != nil {
		return err
	}
	u, err := uuid.Parse(p.GUID)
	if err != nil {
		return fmt.Errorf("partition %d of %s has an invalid GUID %q: %w", id, device, p.GUID, err)
	}
	p.Attributes &^= gpt.LegacyBootAttribute
	t.gpt.ProtectiveMBR = true
	t.bootGUID = mixedEndian(u[:])
	return t.write()
}

// BootPartition returns the id of the partition recorded as boot partition
// in the protective MBR, or 0 if none is.
func (Service) BootPartition(ctx context.Context, device string) (int, error) {
	t, err := open(device, diskfs.ReadOnly)
	if err != nil {
		return 0, err
	}
	defer t.close()

	raw, err := readBootGUID(t.d.File)
	if err != nil {
		return 0, fmt.Errorf("cannot read boot partition of %s: %w", device, err)
	}
	u, err := uuid.FromBytes(mixedEndian(raw))
	if err != nil {
		return 0, err
	}
	if u == uuid.Nil {
		return 0, nil
	}
	for idx, p := range t.slots {
		if p.Type != diskgpt.Unused && strings.EqualFold(p.GUID, u.String()) {
			return idx + 1, nil
		}
	}
	return 0, fmt.Errorf("boot partition %s of %s matches no partition", u, device)
}

func (Service) PartitionSectors(ctx context.Context, device string, id int) (uint64, error) {
	t, err := open(device, diskfs.ReadOnly)
	if err != nil {
		return 0, err
	}
	defer t.close()

	p, err := t.slot(id)
	if err != nil {
		return 0, err
	}
	return p.End - p.Start + 1, nil
}

// Entries returns the used slots of the table on device, ordered by id.
func (Service) Entries(ctx context.Context, device string) ([]Entry, error) {
	t, err := open(device, diskfs.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer t.close()

	var entries []Entry
	for idx, p := range t.slots {
		if p.Type == diskgpt.Unused {
			continue
		}
		entries = append(entries, Entry{
			ID:         idx + 1,
			Start:      p.Start,
			Sectors:    p.End - p.Start + 1,
			Type:       string(p.Type),
			Label:      p.Name,
			GUID:       p.GUID,
			Attributes: p.Attributes,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// Validate fails unless device carries a readable GPT.
func (s Service) Validate(ctx context.Context, device string) error {
	entries, err := s.Entries(ctx, device)
	if err != nil {
		return err
	}
	for _, e := range entries {
		logrus.Debugf("%s: partition %d %q start %d sectors %d type %s attributes %#x", device, e.ID, e.Label, e.Start, e.Sectors, e.Type, e.Attributes)
	}
	return nil
}
