package executil_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/dualboot-images/internal/executil"
	"github.com/osbuild/dualboot-images/internal/test"
)

func TestRunTrimsOutput(t *testing.T) {
	var called []string
	test.MockGlobal(t, &executil.Exec, func(ctx context.Context, name string, arg ...string) ([]byte, []byte, int, error) {
		called = append([]string{name}, arg...)
		return []byte("  8388608\n"), nil, 0, nil
	})

	out, err := executil.Run(context.Background(), "cgpt", "show", "-i", "3", "-s", "/dev/loop0")
	require.NoError(t, err)
	assert.Equal(t, "8388608", out)
	assert.Equal(t, []string{"cgpt", "show", "-i", "3", "-s", "/dev/loop0"}, called)
}

func TestRunFailure(t *testing.T) {
	failure := errors.New("exit status 3")
	test.MockGlobal(t, &executil.Exec, func(ctx context.Context, name string, arg ...string) ([]byte, []byte, int, error) {
		return nil, []byte("ERROR: no such partition\n"), 3, failure
	})

	_, err := executil.Run(context.Background(), "cgpt", "show", "-i", "13", "-s", "/dev/loop0")
	require.Error(t, err)
	assert.EqualError(t, err, "cgpt show -i 13 -s /dev/loop0 failed with exit code 3: ERROR: no such partition")
	assert.True(t, errors.Is(err, failure))

	var cmdErr *executil.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitCode)
}

func TestRunFailureWithoutStderr(t *testing.T) {
	test.MockGlobal(t, &executil.Exec, func(ctx context.Context, name string, arg ...string) ([]byte, []byte, int, error) {
		return nil, nil, -1, errors.New("executable file not found in $PATH")
	})

	_, err := executil.Run(context.Background(), "partprobe", "/dev/loop1")
	assert.EqualError(t, err, "partprobe /dev/loop1 failed with exit code -1: executable file not found in $PATH")
}

func TestExecRealCommand(t *testing.T) {
	if _, err := executil.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	_, _, code, err := executil.Exec(context.Background(), "true")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}
