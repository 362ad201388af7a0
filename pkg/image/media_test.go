package image_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/dualboot-images/internal/test"
	"github.com/osbuild/dualboot-images/pkg/image"
)

func TestMediaSectorsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.img", make([]byte, 512*10+100), 0644))

	sectors, err := image.MediaSectors(fs, "/c.img", 512)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), sectors)

	sectors, err = image.MediaSectors(fs, "/c.img", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), sectors)

	sectors, err = image.MediaSectors(fs, "/c.img", 4096)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sectors)
}

func TestMediaSectorsErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := image.MediaSectors(fs, "/missing.img", 512)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, fs.MkdirAll("/dir", 0755))
	_, err = image.MediaSectors(fs, "/dir", 512)
	assert.EqualError(t, err, "/dir is neither a regular file nor a block device")
}

func TestMediaSectorsBlockDevice(t *testing.T) {
	test.MockGlobal(t, &image.BlockDeviceSize, func(path string) (uint64, error) {
		assert.Equal(t, "/dev/null", path)
		return 64 * 1024 * 1024 * 1024, nil
	})

	// /dev/null is a character device, which also carries os.ModeDevice
	fi, err := os.Stat("/dev/null")
	if err != nil || fi.Mode()&os.ModeDevice == 0 {
		t.Skip("no /dev/null device node")
	}
	sectors, err := image.MediaSectors(afero.NewOsFs(), filepath.Clean("/dev/null"), 512)
	require.NoError(t, err)
	assert.Equal(t, uint64(134217728), sectors)
}
