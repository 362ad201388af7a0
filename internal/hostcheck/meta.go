// Package hostcheck verifies that the host can build a dual-boot image:
// the required tools are installed and loop devices can be created.
package hostcheck

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Config holds the build settings that influence which checks apply.
type Config struct {
	// Backend is the partition table backend, "cgpt" or "diskfs".
	Backend   string
	AssetsDir string
}

// Metadata provides information about a check.
type Metadata struct {
	Name      string // Name of the check (used for lookup and logging)
	ShortName string
}

// CheckFunc is the function type that all checks must implement.
type CheckFunc func(meta *Metadata, config *Config) error

type RegisteredCheck struct {
	Meta *Metadata
	Func CheckFunc
}

// Result represents the outcome of a check execution.
type Result struct {
	Meta  *Metadata
	Error error // Error, warning, skip or nil if the check passed
}

// SortedResults sorts by outcome: passed, skipped, warning, failed.
type SortedResults []Result

func (sr SortedResults) Len() int {
	return len(sr)
}

func (sr SortedResults) Swap(i, j int) {
	sr[i], sr[j] = sr[j], sr[i]
}

func (sr SortedResults) Less(i, j int) bool {
	getRank := func(err error) int {
		switch {
		case err == nil:
			return 0
		case IsSkip(err):
			return 1
		case IsWarning(err):
			return 2
		case IsFail(err):
			return 3
		default:
			return 4
		}
	}
	return getRank(sr[i].Error) < getRank(sr[j].Error)
}

// Err returns the failed results as one error, or nil if no check failed.
// Skipped checks and warnings are not errors.
func (sr SortedResults) Err() error {
	var errs []error
	for _, res := range sr {
		if res.Error != nil && !IsSkip(res.Error) && !IsWarning(res.Error) {
			errs = append(errs, fmt.Errorf("%s: %w", res.Meta.Name, res.Error))
		}
	}
	return errors.Join(errs...)
}

// RegisterCheck registers a check implementation. This is called by each
// check's init() function.
func RegisterCheck(meta Metadata, fn CheckFunc) {
	checkRegistry = append(checkRegistry, RegisteredCheck{
		Meta: &meta,
		Func: fn,
	})
}

var checkRegistry []RegisteredCheck

// GetAllChecks returns all registered checks sorted by name.
func GetAllChecks() []RegisteredCheck {
	checks := append([]RegisteredCheck(nil), checkRegistry...)
	sort.Slice(checks, func(i, j int) bool {
		return checks[i].Meta.Name < checks[j].Meta.Name
	})
	return checks
}

func FindCheckByName(name string) (RegisteredCheck, bool) {
	for _, chk := range checkRegistry {
		if chk.Meta.Name == name {
			return chk, true
		}
	}
	return RegisteredCheck{}, false
}

func MustFindCheckByName(name string) RegisteredCheck {
	chk, found := FindCheckByName(name)
	if !found {
		panic("check not found: " + name)
	}
	return chk
}

// Run runs all checks sequentially and returns their sorted results.
func Run(config *Config) SortedResults {
	var results SortedResults
	for _, chk := range GetAllChecks() {
		err := chk.Func(chk.Meta, config)
		if err != nil {
			logrus.Debugf("%s: %v", chk.Meta.Name, err)
		}
		results = append(results, Result{Meta: chk.Meta, Error: err})
	}
	sort.Stable(results)
	return results
}
