package enumerate

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that no walker goroutine or child process reaper outlives a test
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
