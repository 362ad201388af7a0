package gpt

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/dualboot-images/pkg/disk"
)

type Directive string

const (
	DirectiveCreate     Directive = "create"
	DirectiveAdd        Directive = "add"
	DirectiveAttributes Directive = "attributes"
	DirectiveBoot       Directive = "boot"
	DirectiveValidate   Directive = "validate"
)

// WriteError reports the directive that failed while writing a table. ID
// is zero for directives that do not refer to a partition.
type WriteError struct {
	Directive Directive
	ID        int
	Err       error
}

func (e *WriteError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("partition table directive %q failed: %s", e.Directive, e.Err)
	}
	return fmt.Sprintf("partition table directive %q for partition %d failed: %s", e.Directive, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer applies partition plans through a Service. The kernel priorities
// and the boot partition are fixed per layout and are not derived from the
// plan.
type Writer struct {
	Service          Service
	KernelPriorities []disk.KernelPriority
	BootPartition    int
}

// NewWriter returns a Writer with the post-processing policy of layout.
func NewWriter(svc Service, layout disk.Layout) *Writer {
	return &Writer{
		Service:          svc,
		KernelPriorities: layout.KernelPriorities,
		BootPartition:    layout.BootPartition,
	}
}

// Apply writes a fresh GPT with all partitions of the plan to target.
// The first failing directive aborts the write.
func (w *Writer) Apply(ctx context.Context, plan disk.PartitionPlan, target string) error {
	logrus.Infof("writing partition table to %s", target)

	if err := w.Service.Create(ctx, target); err != nil {
		return &WriteError{Directive: DirectiveCreate, Err: err}
	}

	for _, d := range plan.Partitions {
		logrus.Debugf("adding partition %d (%s) at sector %d, %d sectors", d.ID, d.Label, d.StartSector, d.SectorCount)
		if err := w.Service.AddPartition(ctx, target, partitionFromDescriptor(d)); err != nil {
			return &WriteError{Directive: DirectiveAdd, ID: d.ID, Err: err}
		}
	}

	for _, kp := range w.KernelPriorities {
		attrs := KernelAttributes{
			Successful: kp.Successful,
			Tries:      kp.Tries,
			Priority:   kp.Priority,
		}
		if err := w.Service.SetKernelAttributes(ctx, target, kp.ID, attrs); err != nil {
			return &WriteError{Directive: DirectiveAttributes, ID: kp.ID, Err: err}
		}
	}

	if w.BootPartition != 0 {
		if err := w.Service.SetBootPartition(ctx, target, w.BootPartition); err != nil {
			return &WriteError{Directive: DirectiveBoot, ID: w.BootPartition, Err: err}
		}
	}

	if v, ok := w.Service.(Validator); ok {
		if err := v.Validate(ctx, target); err != nil {
			return &WriteError{Directive: DirectiveValidate, Err: err}
		}
	}
	return nil
}
