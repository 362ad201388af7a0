package image

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// AllocateSparse creates path as a sparse file of size bytes. An existing
// file is truncated first, an existing block device is used as is.
func AllocateSparse(fs afero.Fs, path string, size uint64) error {
	if size == 0 {
		return fmt.Errorf("cannot allocate %s: size must be positive", path)
	}

	if fi, err := fs.Stat(path); err == nil && fi.Mode()&os.ModeDevice != 0 {
		logrus.Infof("%s is a block device, writing to it directly", path)
		return nil
	}

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("cannot create image file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return fmt.Errorf("cannot set size of image file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cannot create image file: %w", err)
	}
	logrus.Infof("created %d byte sparse image %s", size, path)
	return nil
}
