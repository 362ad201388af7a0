// Package executil runs external tools. All entry points are package
// variables so tests can replace them with internal/test.MockGlobal.
package executil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/dualboot-images/pkg/shutil"
)

// Exec is a mockable version of os/exec.Cmd.Run. It returns stdout,
// stderr and the exit code of the command.
var Exec = func(ctx context.Context, name string, arg ...string) ([]byte, []byte, int, error) {
	cmdStr := shutil.QuoteCommand(name, arg...)

	cmd := exec.CommandContext(ctx, name, arg...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	err := cmd.Run()

	exitCode := 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		}
		logrus.Debugf("exec: %s (%s)\n%s\n%s", cmdStr, err, stdoutBuf.String(), stderrBuf.String())
	} else {
		logrus.Debugf("exec: %s", cmdStr)
	}

	return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitCode, err
}

// LookPath is a mockable version of os/exec.LookPath.
var LookPath = exec.LookPath

// Run executes the command via Exec and returns its trimmed stdout. A
// failing command is reported together with its stderr.
func Run(ctx context.Context, name string, arg ...string) (string, error) {
	stdout, stderr, exitCode, err := Exec(ctx, name, arg...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return "", &CommandError{
			Command:  shutil.QuoteCommand(name, arg...),
			ExitCode: exitCode,
			Stderr:   msg,
			Err:      err,
		}
	}
	return strings.TrimSpace(string(stdout)), nil
}

// CommandError describes a failed external command.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d: %s", e.Command, e.ExitCode, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
