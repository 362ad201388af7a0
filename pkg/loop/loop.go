// Package loop maps image files to loop block devices with losetup.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/dualboot-images/internal/executil"
)

// Device is an attached loop device with partition scanning enabled.
// Partition N of the image is available as <Path>pN.
type Device struct {
	Path  string
	Image string

	released bool
}

// ReleaseError is returned when detaching a loop device fails. The device
// may still be attached and has to be cleaned up with "losetup -d".
type ReleaseError struct {
	Device string
	Err    error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("cannot release loop device %s: %s", e.Device, e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}

// Attach maps image to the first free loop device and rescans its
// partitions.
func Attach(ctx context.Context, image string) (*Device, error) {
	out, err := executil.Run(ctx, "losetup", "--show", "-fP", image)
	if err != nil {
		return nil, fmt.Errorf("cannot attach %s: %w", image, err)
	}
	if out == "" || strings.ContainsAny(out, " \n") {
		return nil, fmt.Errorf("cannot attach %s: unexpected losetup output %q", image, out)
	}
	dev := &Device{Path: out, Image: image}
	logrus.Infof("attached %s to %s", image, dev.Path)

	// losetup -P already scans, partprobe only makes sure udev caught up
	if _, err := executil.Run(ctx, "partprobe", dev.Path); err != nil {
		logrus.Warnf("partprobe %s failed: %v", dev.Path, err)
	}
	return dev, nil
}

func (d *Device) Device() string {
	return d.Path
}

func (d *Device) PartitionPath(id int) string {
	return fmt.Sprintf("%sp%d", d.Path, id)
}

// Release detaches the device. Only the first call runs losetup, later
// calls return nil. A device that is already detached is not an error.
func (d *Device) Release() error {
	if d.released {
		return nil
	}
	d.released = true

	// release must happen even when the build context was cancelled
	_, err := executil.Run(context.Background(), "losetup", "-d", d.Path)
	if err != nil {
		var cmdErr *executil.CommandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, "No such device") {
			logrus.Debugf("loop device %s already detached", d.Path)
			return nil
		}
		return &ReleaseError{Device: d.Path, Err: err}
	}
	logrus.Infof("released loop device %s", d.Path)
	return nil
}

func (d *Device) Released() bool {
	return d.released
}
