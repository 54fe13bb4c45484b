package testutil

import (
	"testing"
	"time"
)

// WaitFor polls a condition until it returns true or the timeout
// elapses, failing the test on timeout. Use it for asserting on
// asynchronous state such as heartbeat evictions or broadcast
// delivery.
func WaitFor(t testing.TB, timeout time.Duration, message string, condition func() bool) {
	t.Helper()

	if condition() {
		return
	}

	interval := 10 * time.Millisecond
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s (waited %v)", message, timeout)
		}
	}
}
