package snapshots

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionKey(t *testing.T) {
	assert.Equal(t, "flowpulse:execution:exec-1", executionKey("exec-1"))
}

func TestLatestKey(t *testing.T) {
	assert.Equal(t, "flowpulse:workflow:wf-1:latest", latestKey("wf-1"))
}
