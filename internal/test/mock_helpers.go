// Package test contains helpers shared by the tests of all packages.
package test

import (
	"sync"
	"testing"
)

// locks holds one mutex per mocked variable, keyed by its address.
var locks sync.Map

// MockGlobal replaces *target with mock until the end of the test.
//
// Tests mocking the same variable are serialized, tests mocking different
// variables still run in parallel. Mocking the same variable twice within
// one test deadlocks, use subtests instead.
func MockGlobal[T any](t *testing.T, target *T, mock T) {
	t.Helper()

	mu, _ := locks.LoadOrStore(target, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()

	saved := *target
	*target = mock
	t.Cleanup(func() {
		*target = saved
		mu.(*sync.Mutex).Unlock()
	})
}
