// Package cgpt implements gpt.Service on top of the ChromeOS cgpt tool.
package cgpt

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/dualboot-images/internal/executil"
	"github.com/osbuild/dualboot-images/pkg/gpt"
)

const Binary = "cgpt"

type Service struct{}

var _ gpt.Service = Service{}
var _ gpt.Validator = Service{}

func New() Service {
	return Service{}
}

func run(ctx context.Context, arg ...string) (string, error) {
	return executil.Run(ctx, Binary, arg...)
}

func (Service) Create(ctx context.Context, device string) error {
	_, err := run(ctx, "create", device)
	return err
}

func (Service) AddPartition(ctx context.Context, device string, p gpt.Partition) error {
	_, err := run(ctx, "add",
		"-i", strconv.Itoa(p.ID),
		"-b", strconv.FormatUint(p.Start, 10),
		"-s", strconv.FormatUint(p.Count, 10),
		"-t", p.Type.String(),
		"-l", p.Label,
		device)
	return err
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (Service) SetKernelAttributes(ctx context.Context, device string, id int, attrs gpt.KernelAttributes) error {
	if _, err := attrs.Apply(0); err != nil {
		return err
	}
	_, err := run(ctx, "add",
		"-i", strconv.Itoa(id),
		"-S", boolFlag(attrs.Successful),
		"-T", strconv.Itoa(attrs.Tries),
		"-P", strconv.Itoa(attrs.Priority),
		device)
	return err
}

func (Service) SetBootPartition(ctx context.Context, device string, id int) error {
	if _, err := run(ctx, "boot", "-p", "-i", strconv.Itoa(id), device); err != nil {
		return err
	}
	_, err := run(ctx, "add", "-i", strconv.Itoa(id), "-B", "0", device)
	return err
}

func (Service) PartitionSectors(ctx context.Context, device string, id int) (uint64, error) {
	out, err := run(ctx, "show", "-i", strconv.Itoa(id), "-s", device)
	if err != nil {
		return 0, err
	}
	sectors, err := strconv.ParseUint(out, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse size of partition %d on %s: %q is not a sector count", id, device, out)
	}
	return sectors, nil
}

// Validate runs "cgpt show" on the device, which fails unless the device
// carries a valid GPT.
func (s Service) Validate(ctx context.Context, device string) error {
	out, err := s.Show(ctx, device)
	if err != nil {
		return err
	}
	logrus.Debugf("partition table of %s:\n%s", device, out)
	return nil
}

// Show returns the human readable partition table of device.
func (Service) Show(ctx context.Context, device string) (string, error) {
	return run(ctx, "show", device)
}
