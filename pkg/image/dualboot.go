// Package image builds dual-boot disk images: a fresh ChromeOS style
// partition layout filled from a recovery image.
package image

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/osbuild/dualboot-images/pkg/bootconfig"
	"github.com/osbuild/dualboot-images/pkg/cgpt"
	"github.com/osbuild/dualboot-images/pkg/datasizes"
	"github.com/osbuild/dualboot-images/pkg/disk"
	"github.com/osbuild/dualboot-images/pkg/gpt"
	"github.com/osbuild/dualboot-images/pkg/loop"
	"github.com/osbuild/dualboot-images/pkg/partcopy"
	"github.com/osbuild/dualboot-images/pkg/progress"
)

// DefaultSize is the destination image size in bytes.
const DefaultSize uint64 = 14 * datasizes.GiB

// AttachFunc maps an image to a block device.
type AttachFunc func(ctx context.Context, image string) (partcopy.Media, error)

func attachLoop(ctx context.Context, image string) (partcopy.Media, error) {
	dev, err := loop.Attach(ctx, image)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// BootConfigEmitter writes the boot loader configuration for an image and
// returns the path of the written file.
type BootConfigEmitter interface {
	Emit(ctx context.Context, imagePath string) (string, error)
}

type DualBoot struct {
	// Source is the recovery image the partitions are copied from.
	Source string
	// Destination is the image file (or block device) that is created.
	Destination string
	// Size of the destination image in bytes.
	Size uint64

	Layout     disk.Layout
	AssetsDir  string
	SecureBoot bool

	Fs         afero.Fs
	Service    gpt.Service
	Attach     AttachFunc
	Progress   progress.Reporter
	BootConfig BootConfigEmitter
	// Summary receives the table of copy outcomes, if set.
	Summary io.Writer
}

// BuildResult is returned by Build, also when some partitions failed to
// copy.
type BuildResult struct {
	Plan           disk.PartitionPlan
	Report         *partcopy.Report
	BootConfigPath string
}

func NewDualBoot(source, destination string) *DualBoot {
	layout, err := disk.GetLayout(disk.DefaultLayoutName)
	if err != nil {
		panic(err)
	}
	fs := afero.NewOsFs()
	return &DualBoot{
		Source:      source,
		Destination: destination,
		Size:        DefaultSize,
		Layout:      layout,
		SecureBoot:  true,
		Fs:          fs,
		Service:     cgpt.New(),
		Attach:      attachLoop,
		Progress:    progress.Nop{},
		BootConfig:  bootconfig.NewEmitter(fs),
	}
}

func (img *DualBoot) sectorSize() uint64 {
	if img.Layout.SectorSize == 0 {
		return disk.DefaultSectorSize
	}
	return img.Layout.SectorSize
}

// PlanFor computes the partition plan of the image's layout for a
// destination of size bytes without touching any device.
func (img *DualBoot) PlanFor(size uint64) (disk.PartitionPlan, error) {
	return img.Layout.Plan(size / img.sectorSize())
}

func (img *DualBoot) validateSource(ctx context.Context) error {
	fi, err := img.Fs.Stat(img.Source)
	if err != nil {
		return fmt.Errorf("invalid source image: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("invalid source image: %s is a directory", img.Source)
	}
	if v, ok := img.Service.(gpt.Validator); ok {
		if err := v.Validate(ctx, img.Source); err != nil {
			return fmt.Errorf("invalid source image %s: %w", img.Source, err)
		}
	}
	return nil
}

// Build runs all phases in order. Errors from validation, allocation,
// planning or writing the partition table stop the build before any
// partition is copied. Failures of single partitions are reported in the
// result and as a *partcopy.CopyError after all partitions have been
// attempted.
func (img *DualBoot) Build(ctx context.Context) (*BuildResult, error) {
	if err := img.Layout.Validate(); err != nil {
		return nil, err
	}

	logrus.Infof("validating source image %s", img.Source)
	if err := img.validateSource(ctx); err != nil {
		return nil, err
	}

	if err := AllocateSparse(img.Fs, img.Destination, img.Size); err != nil {
		return nil, err
	}
	sectors, err := MediaSectors(img.Fs, img.Destination, img.sectorSize())
	if err != nil {
		return nil, fmt.Errorf("cannot get size of %s: %w", img.Destination, err)
	}

	plan, err := img.Layout.Plan(sectors)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := gpt.NewWriter(img.Service, img.Layout).Apply(ctx, plan, img.Destination); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := img.Attach(ctx, img.Source)
	if err != nil {
		return nil, err
	}
	dst, err := img.Attach(ctx, img.Destination)
	if err != nil {
		if rerr := src.Release(); rerr != nil {
			logrus.Warnf("%v", rerr)
		}
		return nil, err
	}

	copier := &partcopy.Copier{
		Fs:         img.Fs,
		Sizer:      img.Service,
		Progress:   img.Progress,
		SectorSize: img.sectorSize(),
	}
	mapping := partcopy.MappingFromLayout(img.Layout, img.AssetsDir, img.SecureBoot)
	report := copier.CopyAll(ctx, src, dst, mapping, img.Layout.Copy.Skip)

	result := &BuildResult{
		Plan:   plan,
		Report: report,
	}
	if img.Summary != nil {
		if err := report.Summary(img.Summary); err != nil {
			logrus.Warnf("cannot write copy summary: %v", err)
		}
	}

	copyErr := report.Err()
	if img.BootConfig != nil {
		path, err := img.BootConfig.Emit(ctx, img.Destination)
		if err != nil {
			return result, errors.Join(copyErr, err)
		}
		result.BootConfigPath = path
	}
	return result, copyErr
}
