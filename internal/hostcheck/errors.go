package hostcheck

import (
	"errors"
	"fmt"
	"strings"
)

var ErrCheckSkipped = errors.New("skip")
var ErrCheckFailed = errors.New("fail")
var ErrCheckWarning = errors.New("warn")

func join(reason []any) string {
	parts := make([]string, 0, len(reason))
	for _, r := range reason {
		parts = append(parts, fmt.Sprintf("%v", r))
	}
	return strings.Join(parts, " ")
}

func Skip(reason ...any) error {
	return fmt.Errorf("%w: %s", ErrCheckSkipped, join(reason))
}

func Pass() error {
	return nil
}

func Fail(reason ...any) error {
	return fmt.Errorf("%w: %s", ErrCheckFailed, join(reason))
}

func Warning(reason ...any) error {
	return fmt.Errorf("%w: %s", ErrCheckWarning, join(reason))
}

func IsSkip(err error) bool {
	return errors.Is(err, ErrCheckSkipped)
}

func IsFail(err error) bool {
	return errors.Is(err, ErrCheckFailed)
}

func IsWarning(err error) bool {
	return errors.Is(err, ErrCheckWarning)
}

func IconFor(err error) string {
	switch {
	case err == nil:
		return "🟢"
	case IsSkip(err):
		return "🔵"
	case IsWarning(err):
		return "🟠"
	default:
		return "🔴"
	}
}
