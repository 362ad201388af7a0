package main

import (
	"context"
	"io"
	"os"

	"github.com/osbuild/dualboot-images/internal/hostcheck"
	"github.com/osbuild/dualboot-images/pkg/image"
)

var (
	Run           = run
	NormalizeArgs = normalizeArgs
	ParseSize     = parseSize
)

func MockOsArgs(new []string) (restore func()) {
	saved := os.Args
	os.Args = append([]string{"argv0"}, new...)
	return func() {
		os.Args = saved
	}
}

func MockOsStdout(new io.Writer) (restore func()) {
	saved := osStdout
	osStdout = new
	return func() {
		osStdout = saved
	}
}

func MockOsStderr(new io.Writer) (restore func()) {
	saved := osStderr
	osStderr = new
	return func() {
		osStderr = saved
	}
}

func MockDefaultConfigPath(new string) (restore func()) {
	saved := DefaultConfigPath
	DefaultConfigPath = new
	return func() {
		DefaultConfigPath = saved
	}
}

func MockBuildImage(f func(context.Context, *image.DualBoot) (*image.BuildResult, error)) (restore func()) {
	saved := buildImage
	buildImage = f
	return func() {
		buildImage = saved
	}
}

func MockRunHostChecks(f func(*hostcheck.Config) hostcheck.SortedResults) (restore func()) {
	saved := runHostChecks
	runHostChecks = f
	return func() {
		runHostChecks = saved
	}
}
