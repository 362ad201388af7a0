// Package testgpt provides an in-memory gpt.Service for tests.
package testgpt

import (
	"context"
	"fmt"
	"sort"

	"github.com/osbuild/dualboot-images/pkg/gpt"
)

type Table struct {
	Partitions    map[int]gpt.Partition
	Attributes    map[int]gpt.KernelAttributes
	BootPartition int
}

// Service records every directive and keeps one table per device. Set
// FailOn to make a directive fail, e.g. "add:12" or "create".
type Service struct {
	Calls  []string
	Tables map[string]*Table
	FailOn map[string]error
}

var _ gpt.Service = (*Service)(nil)
var _ gpt.Validator = (*Service)(nil)

func New() *Service {
	return &Service{
		Tables: make(map[string]*Table),
		FailOn: make(map[string]error),
	}
}

func (s *Service) record(call string) error {
	s.Calls = append(s.Calls, call)
	return s.FailOn[call]
}

func (s *Service) table(device string) (*Table, error) {
	t, ok := s.Tables[device]
	if !ok {
		return nil, fmt.Errorf("no partition table on %s", device)
	}
	return t, nil
}

func (s *Service) Create(ctx context.Context, device string) error {
	if err := s.record("create"); err != nil {
		return err
	}
	s.Tables[device] = &Table{
		Partitions: make(map[int]gpt.Partition),
		Attributes: make(map[int]gpt.KernelAttributes),
	}
	return nil
}

func (s *Service) AddPartition(ctx context.Context, device string, p gpt.Partition) error {
	if err := s.record(fmt.Sprintf("add:%d", p.ID)); err != nil {
		return err
	}
	t, err := s.table(device)
	if err != nil {
		return err
	}
	t.Partitions[p.ID] = p
	return nil
}

func (s *Service) SetKernelAttributes(ctx context.Context, device string, id int, attrs gpt.KernelAttributes) error {
	if err := s.record(fmt.Sprintf("attributes:%d", id)); err != nil {
		return err
	}
	t, err := s.table(device)
	if err != nil {
		return err
	}
	t.Attributes[id] = attrs
	return nil
}

func (s *Service) SetBootPartition(ctx context.Context, device string, id int) error {
	if err := s.record(fmt.Sprintf("boot:%d", id)); err != nil {
		return err
	}
	t, err := s.table(device)
	if err != nil {
		return err
	}
	t.BootPartition = id
	return nil
}

func (s *Service) PartitionSectors(ctx context.Context, device string, id int) (uint64, error) {
	if err := s.record(fmt.Sprintf("sectors:%d", id)); err != nil {
		return 0, err
	}
	t, err := s.table(device)
	if err != nil {
		return 0, err
	}
	p, ok := t.Partitions[id]
	if !ok {
		return 0, fmt.Errorf("partition %d not found on %s", id, device)
	}
	return p.Count, nil
}

func (s *Service) Validate(ctx context.Context, device string) error {
	if err := s.record("validate"); err != nil {
		return err
	}
	_, err := s.table(device)
	return err
}

// IDs returns the partition ids of the table on device in ascending order.
func (s *Service) IDs(device string) []int {
	t, ok := s.Tables[device]
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(t.Partitions))
	for id := range t.Partitions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
