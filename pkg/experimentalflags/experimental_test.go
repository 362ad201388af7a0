package experimentalflags_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osbuild/dualboot-images/pkg/experimentalflags"
)

func TestExperimentalBool(t *testing.T) {
	for _, tc := range []struct {
		envStr   string
		expected bool
	}{
		{"", false},
		{"no-progress=0", false},
		{"no-progress=f", false},
		{"no-progress=false", false},
		{"no-progress=yes", false},
		{"no-progress=1", true},
		{"no-progress=true", true},
		{"no-progress=t", true},
		{"no-progress", true},
		{"backend=diskfs,no-progress", true},
		{"backend=diskfs, no-progress", true},
	} {
		t.Run(tc.envStr, func(t *testing.T) {
			t.Setenv("DUALBOOT_EXPERIMENTAL", tc.envStr)

			assert.Equal(t, tc.expected, experimentalflags.Bool(experimentalflags.OptNoProgress))
		})
	}
}

func TestExperimentalString(t *testing.T) {
	for _, tc := range []struct {
		envStr   string
		expected string
	}{
		{"", ""},
		{"backend", "true"},
		{"backend=diskfs", "diskfs"},
		{"no-progress,backend=cgpt", "cgpt"},
		{"backend=a=b", "a=b"},
		{",,", ""},
	} {
		t.Run(tc.envStr, func(t *testing.T) {
			t.Setenv("DUALBOOT_EXPERIMENTAL", tc.envStr)

			assert.Equal(t, tc.expected, experimentalflags.String(experimentalflags.OptBackend))
		})
	}
}
