package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Stopper is anything with a synchronous Stop, such as a server.
type Stopper interface {
	Stop() error
}

// StopOnCleanup stops s when the test finishes and fails the test if Stop
// returns an error.
func StopOnCleanup(t *testing.T, s Stopper) {
	t.Helper()
	t.Cleanup(func() {
		assert.NoError(t, s.Stop(), "stop on cleanup")
	})
}
