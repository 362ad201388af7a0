package main

import (
	"fmt"

	"github.com/osbuild/dualboot-images/pkg/cgpt"
	"github.com/osbuild/dualboot-images/pkg/experimentalflags"
	"github.com/osbuild/dualboot-images/pkg/gpt"
	"github.com/osbuild/dualboot-images/pkg/gptdiskfs"
)

const (
	backendCgpt   = "cgpt"
	backendDiskfs = "diskfs"
)

func newService(backend string) (gpt.Service, error) {
	switch backend {
	case backendCgpt:
		return cgpt.New(), nil
	case backendDiskfs:
		return gptdiskfs.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q, use %s or %s", backend, backendCgpt, backendDiskfs)
	}
}

// backendOverride returns the backend forced through the experimental
// environment, if any.
func backendOverride(backend string) string {
	if b := experimentalflags.String(experimentalflags.OptBackend); b != "" {
		return b
	}
	return backend
}
