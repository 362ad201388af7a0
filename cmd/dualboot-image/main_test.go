package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/osbuild/dualboot-images/cmd/dualboot-image"
	"github.com/osbuild/dualboot-images/internal/hostcheck"
	"github.com/osbuild/dualboot-images/pkg/cgpt"
	"github.com/osbuild/dualboot-images/pkg/datasizes"
	"github.com/osbuild/dualboot-images/pkg/disk"
	"github.com/osbuild/dualboot-images/pkg/gptdiskfs"
	"github.com/osbuild/dualboot-images/pkg/image"
	"github.com/osbuild/dualboot-images/pkg/progress"
)

type runResult struct {
	stdout string
	stderr string
	err    error
}

// runCmd runs the command line with fake host checks and a build that
// records the image instead of building it.
func runCmd(t *testing.T, args []string, checks hostcheck.SortedResults, buildErr error) (runResult, *image.DualBoot) {
	t.Helper()

	restore := main.MockOsArgs(args)
	defer restore()
	restore = main.MockDefaultConfigPath(filepath.Join(t.TempDir(), "missing.toml"))
	defer restore()

	var stdout, stderr bytes.Buffer
	restore = main.MockOsStdout(&stdout)
	defer restore()
	restore = main.MockOsStderr(&stderr)
	defer restore()

	restore = main.MockRunHostChecks(func(*hostcheck.Config) hostcheck.SortedResults {
		return checks
	})
	defer restore()

	var built *image.DualBoot
	restore = main.MockBuildImage(func(ctx context.Context, img *image.DualBoot) (*image.BuildResult, error) {
		built = img
		return &image.BuildResult{BootConfigPath: img.Destination + ".grub.txt"}, buildErr
	})
	defer restore()

	err := main.Run()
	return runResult{stdout: stdout.String(), stderr: stderr.String(), err: err}, built
}

func TestNormalizeArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"--source", "r.bin", "--destination=c.img", "-s", "16", "-v"},
		main.NormalizeArgs([]string{"-src", "r.bin", "-dst=c.img", "-s", "16", "-v"}))
}

func TestParseSize(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected uint64
		err      bool
	}{
		{"14", 14 * datasizes.GiB, false},
		{"32GiB", 32 * datasizes.GiB, false},
		{"500 MiB", 500 * datasizes.MiB, false},
		{"0", 0, true},
		{"0 GiB", 0, true},
		{"fourteen", 0, true},
		{"18446744073709551615", 0, true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			size, err := main.ParseSize(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, size)
		})
	}
}

func TestBuildDefaults(t *testing.T) {
	res, img := runCmd(t, []string{"-src", "/images/recovery.bin", "-dst", "/out/c.img"}, nil, nil)
	require.NoError(t, res.err)
	require.NotNil(t, img)

	assert.Equal(t, "/images/recovery.bin", img.Source)
	assert.Equal(t, "/out/c.img", img.Destination)
	assert.Equal(t, image.DefaultSize, img.Size)
	assert.Equal(t, disk.DefaultLayoutName, img.Layout.Name)
	assert.True(t, img.SecureBoot)
	assert.IsType(t, cgpt.Service{}, img.Service)
	assert.IsType(t, &progress.BarReporter{}, img.Progress)
	assert.Contains(t, res.stdout, "boot configuration written to /out/c.img.grub.txt\n")
	assert.Contains(t, res.stdout, "image /out/c.img created with layout chromeos-v1\n")
}

func TestBuildFlags(t *testing.T) {
	res, img := runCmd(t, []string{
		"build",
		"--source", "/images/recovery.bin",
		"--destination", "/out/c.img",
		"-s", "32GiB",
		"--layout", "brunch-minimal-v1",
		"--backend", "diskfs",
		"--assets-dir", "/assets",
		"--no-secure-boot",
		"--no-progress",
	}, nil, nil)
	require.NoError(t, res.err)
	require.NotNil(t, img)

	assert.Equal(t, uint64(32*datasizes.GiB), img.Size)
	assert.Equal(t, "brunch-minimal-v1", img.Layout.Name)
	assert.Equal(t, "/assets", img.AssetsDir)
	assert.False(t, img.SecureBoot)
	assert.IsType(t, gptdiskfs.Service{}, img.Service)
	assert.Equal(t, progress.Nop{}, img.Progress)
}

func TestBuildExperimentalBackend(t *testing.T) {
	t.Setenv("DUALBOOT_EXPERIMENTAL", "backend=diskfs,no-progress")

	res, img := runCmd(t, []string{"-src", "r.bin", "-dst", "c.img"}, nil, nil)
	require.NoError(t, res.err)
	assert.IsType(t, gptdiskfs.Service{}, img.Service)
	assert.Equal(t, progress.Nop{}, img.Progress)
}

func TestBuildConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets_dir = "/usr/share/dualboot/assets"
layout = "brunch-minimal-v1"
backend = "diskfs"
size = "20 GiB"
secure_boot = false
sector_size = 512
`), 0644))

	res, img := runCmd(t, []string{"--config", path, "-src", "r.bin", "-dst", "c.img", "-s", "24"}, nil, nil)
	require.NoError(t, res.err)

	assert.Equal(t, "/usr/share/dualboot/assets", img.AssetsDir)
	assert.Equal(t, "brunch-minimal-v1", img.Layout.Name)
	assert.IsType(t, gptdiskfs.Service{}, img.Service)
	assert.False(t, img.SecureBoot)
	// the flag wins over the config file
	assert.Equal(t, uint64(24*datasizes.GiB), img.Size)
}

func TestBuildConfigErrors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte(`colour = "blue"`), 0644))

	res, img := runCmd(t, []string{"--config", unknown, "-src", "r.bin", "-dst", "c.img"}, nil, nil)
	assert.ErrorContains(t, res.err, "unknown keys [colour]")
	assert.Nil(t, img)

	res, _ = runCmd(t, []string{"--config", filepath.Join(dir, "missing.toml"), "-src", "r.bin", "-dst", "c.img"}, nil, nil)
	assert.ErrorIs(t, res.err, os.ErrNotExist)
}

func TestBuildLayoutFile(t *testing.T) {
	res, img := runCmd(t, []string{"--layout-file", "../../pkg/disk/testdata/custom.yaml", "-src", "r.bin", "-dst", "c.img"}, nil, nil)
	require.NoError(t, res.err)
	expected, err := disk.LoadLayout("../../pkg/disk/testdata/custom.yaml")
	require.NoError(t, err)
	assert.Equal(t, expected.Name, img.Layout.Name)
}

func TestBuildUsageErrors(t *testing.T) {
	res, img := runCmd(t, []string{"-src", "r.bin"}, nil, nil)
	assert.ErrorContains(t, res.err, `required flag(s) "destination" not set`)
	assert.Nil(t, img)

	res, img = runCmd(t, []string{"-src", "r.bin", "-dst", "c.img", "--backend", "parted"}, nil, nil)
	assert.EqualError(t, res.err, `unknown backend "parted", use cgpt or diskfs`)
	assert.Nil(t, img)

	res, img = runCmd(t, []string{"-src", "r.bin", "-dst", "c.img", "--layout", "windows-v1"}, nil, nil)
	assert.ErrorContains(t, res.err, `unknown layout "windows-v1"`)
	assert.Nil(t, img)
}

func TestBuildHostChecksFail(t *testing.T) {
	checks := hostcheck.SortedResults{
		{Meta: &hostcheck.Metadata{Name: "Optional Tools Check"}, Error: hostcheck.Warning("missing optional tools: blkid")},
		{Meta: &hostcheck.Metadata{Name: "Root Check"}, Error: hostcheck.Fail("not root")},
	}
	res, img := runCmd(t, []string{"-src", "r.bin", "-dst", "c.img"}, checks, nil)
	assert.ErrorContains(t, res.err, "host checks failed")
	assert.ErrorIs(t, res.err, hostcheck.ErrCheckFailed)
	assert.Nil(t, img)
	assert.Contains(t, res.stderr, "Optional Tools Check: warn: missing optional tools: blkid")

	res, img = runCmd(t, []string{"-src", "r.bin", "-dst", "c.img", "--skip-checks"}, checks, nil)
	assert.NoError(t, res.err)
	assert.NotNil(t, img)
}

func TestBuildFailure(t *testing.T) {
	res, _ := runCmd(t, []string{"-src", "r.bin", "-dst", "c.img"}, nil, errors.New("1 partition(s) failed to copy"))
	assert.EqualError(t, res.err, "1 partition(s) failed to copy")
	// the boot configuration is reported even if the build failed
	assert.Contains(t, res.stdout, "boot configuration written to c.img.grub.txt")
	assert.NotContains(t, res.stdout, "created with layout")
}

func TestBuildMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dualboot.prom")
	res, _ := runCmd(t, []string{"-src", "r.bin", "-dst", "c.img", "--metrics-file", path}, nil, errors.New("1 partition(s) failed to copy"))
	assert.Error(t, res.err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dualboot_build_success{layout="chromeos-v1"} 0`)
}

func TestPlanText(t *testing.T) {
	res, img := runCmd(t, []string{"plan", "-s", "14"}, nil, nil)
	require.NoError(t, res.err)
	assert.Nil(t, img)
	assert.Contains(t, res.stdout, "ID  LABEL")
	assert.Contains(t, res.stdout, "STATE")
	assert.Contains(t, res.stdout, "21413888")
}

func TestPlanJSON(t *testing.T) {
	res, _ := runCmd(t, []string{"plan", "--format", "json"}, nil, nil)
	require.NoError(t, res.err)

	var plan disk.PartitionPlan
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &plan))
	assert.Equal(t, uint64(29360128), plan.Geometry.TotalSectors)
	state := plan.Find(1)
	require.NotNil(t, state)
	assert.Equal(t, disk.PART_DATA, state.Type)
	assert.Equal(t, uint64(7921664), state.SectorCount)
}

func TestPlanYAML(t *testing.T) {
	res, _ := runCmd(t, []string{"plan", "--format", "yaml", "--layout", "brunch-minimal-v1", "-s", "16"}, nil, nil)
	require.NoError(t, res.err)

	var plan disk.PartitionPlan
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &plan))
	require.Len(t, plan.Partitions, 5)
	assert.Equal(t, 12, plan.Partitions[0].ID)
	assert.Equal(t, disk.PART_EFI, plan.Partitions[0].Type)
}

func TestPlanErrors(t *testing.T) {
	res, _ := runCmd(t, []string{"plan", "--format", "xml"}, nil, nil)
	assert.EqualError(t, res.err, `unsupported formatter "xml"`)

	res, _ = runCmd(t, []string{"plan", "-s", "1"}, nil, nil)
	assert.ErrorIs(t, res.err, disk.ErrInsufficientSpace)
}

func TestLayouts(t *testing.T) {
	res, _ := runCmd(t, []string{"layouts", "--format", "short"}, nil, nil)
	require.NoError(t, res.err)
	assert.Equal(t, "brunch-minimal-v1\nchromeos-v1\n", res.stdout)

	res, _ = runCmd(t, []string{"layouts", "--filter", "label:RWFW"}, nil, nil)
	require.NoError(t, res.err)
	assert.Regexp(t, `^chromeos-v1 \(version 1\): 11:RWFW 6:KERN-C `, res.stdout)

	res, _ = runCmd(t, []string{"layouts", "--filter", "size:1"}, nil, nil)
	assert.EqualError(t, res.err, `unsupported filter prefix: "size"`)
}

func TestCheck(t *testing.T) {
	checks := hostcheck.SortedResults{
		{Meta: &hostcheck.Metadata{Name: "Root Check"}},
		{Meta: &hostcheck.Metadata{Name: "Assets Check"}, Error: hostcheck.Skip("no assets directory")},
	}
	res, _ := runCmd(t, []string{"check"}, checks, nil)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Root Check: passed\n")
	assert.Contains(t, res.stdout, "Assets Check: skip: no assets directory\n")
}
