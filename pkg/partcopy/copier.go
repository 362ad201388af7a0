// Package partcopy copies partition contents from a source image to a
// freshly partitioned destination image.
package partcopy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/osbuild/dualboot-images/pkg/datasizes"
	"github.com/osbuild/dualboot-images/pkg/disk"
	"github.com/osbuild/dualboot-images/pkg/progress"
)

// DefaultBufferSize matches the block size of "dd bs=1M".
const DefaultBufferSize = 1 * datasizes.MiB

// Media is a mapped block device with one sub-device per partition.
type Media interface {
	Device() string
	PartitionPath(id int) string
	Release() error
}

// Sizer reports the size of a partition of a device in sectors.
type Sizer interface {
	PartitionSectors(ctx context.Context, device string, id int) (uint64, error)
}

var (
	ErrShortCopy = errors.New("short copy")
	errAborted   = errors.New("copy aborted")
)

// Copier streams partitions between two Media. The zero value is not
// usable, Sizer must be set.
type Copier struct {
	// Fs is used to open partitions and files, defaults to the OS.
	Fs       afero.Fs
	Sizer    Sizer
	Progress progress.Reporter

	SectorSize uint64
	BufferSize int
}

func (c *Copier) fs() afero.Fs {
	if c.Fs == nil {
		return afero.NewOsFs()
	}
	return c.Fs
}

func (c *Copier) progress() progress.Reporter {
	if c.Progress == nil {
		return progress.Nop{}
	}
	return c.Progress
}

func (c *Copier) sectorSize() uint64 {
	if c.SectorSize == 0 {
		return disk.DefaultSectorSize
	}
	return c.SectorSize
}

func (c *Copier) bufferSize() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}

// CopyAll copies every destination id from 1 to 12 according to mapping.
// Ids in skip are left empty. A failing partition is recorded in the
// report and does not stop the remaining ones.
//
// CopyAll takes ownership of src and dst: both are released exactly once
// before it returns, also when it panics.
func (c *Copier) CopyAll(ctx context.Context, src, dst Media, mapping Mapping, skip []int) (report *Report) {
	report = &Report{}
	reporter := c.progress()

	defer func() {
		reporter.Wait()
		for _, m := range []Media{src, dst} {
			if err := m.Release(); err != nil {
				logrus.Warnf("%v", err)
				report.ReleaseErrors = append(report.ReleaseErrors, err)
			}
		}
	}()

	skipped := make(map[int]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}

	buf := make([]byte, c.bufferSize())
	for id := 1; id <= disk.MaxPartitionID; id++ {
		source, ok := mapping[id]
		if skipped[id] || !ok || source.Kind == SOURCE_SKIP {
			report.Outcomes = append(report.Outcomes, Outcome{ID: id, Status: STATUS_SKIPPED, Reason: ReasonReserved})
			continue
		}
		report.Outcomes = append(report.Outcomes, c.copyOne(ctx, src, dst, id, source, reporter, buf))
	}
	return report
}

func (c *Copier) copyOne(ctx context.Context, src, dst Media, id int, source Source, reporter progress.Reporter, buf []byte) Outcome {
	var srcPath string
	var length uint64

	switch source.Kind {
	case SOURCE_SAME_PARTITION, SOURCE_REMAP_PARTITION:
		srcPath = src.PartitionPath(source.Partition)
		sectors, err := c.Sizer.PartitionSectors(ctx, src.Device(), source.Partition)
		if err != nil {
			return failed(id, srcPath, fmt.Errorf("cannot get size of source partition %d: %w", source.Partition, err))
		}
		length, err = disk.SectorsToBytes(sectors, c.sectorSize())
		if err != nil {
			return failed(id, srcPath, err)
		}
	case SOURCE_FILE:
		srcPath = source.Path
		fi, err := c.fs().Stat(srcPath)
		if errors.Is(err, os.ErrNotExist) {
			logrus.Warnf("skipping partition %d: %s not found", id, srcPath)
			return Outcome{ID: id, Status: STATUS_SKIPPED, Source: srcPath, Reason: ReasonFileNotFound}
		}
		if err != nil {
			return failed(id, srcPath, err)
		}
		length = uint64(fi.Size())
	default:
		panic(fmt.Sprintf("unexpected source kind %s for partition %d", source.Kind, id))
	}

	dstPath := dst.PartitionPath(id)
	logrus.Infof("writing partition %d from %s to %s (%s)", id, srcPath, dstPath, datasizes.Format(length))

	transfer := reporter.Start(fmt.Sprintf("partition %d", id), int64(length))
	finished := false
	defer func() {
		// an unfinished progress bar would block Wait forever
		if !finished {
			transfer.Done(errAborted)
		}
	}()
	err := c.stream(srcPath, dstPath, length, transfer, buf)
	transfer.Done(err)
	finished = true
	if err != nil {
		logrus.Errorf("error writing partition %d: %v", id, err)
		return failed(id, srcPath, err)
	}
	return Outcome{ID: id, Status: STATUS_COPIED, Source: srcPath, Bytes: length}
}

func failed(id int, srcPath string, err error) Outcome {
	return Outcome{ID: id, Status: STATUS_FAILED, Source: srcPath, Err: err}
}

func (c *Copier) stream(srcPath, dstPath string, length uint64, transfer progress.Transfer, buf []byte) (err error) {
	in, err := c.fs().Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	// block devices already exist and must not be truncated
	out, err := c.fs().OpenFile(dstPath, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	n, err := io.CopyBuffer(out, io.LimitReader(transfer.ProxyReader(in), int64(length)), buf)
	if err != nil {
		return err
	}
	if uint64(n) != length {
		return fmt.Errorf("%w: copied %d of %d bytes", ErrShortCopy, n, length)
	}
	return out.Sync()
}
