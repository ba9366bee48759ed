package logbuffer

import (
	"fmt"
	"testing"
	"time"

	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, level models.LogLevel, at time.Time) *models.LogEntry {
	return &models.LogEntry{ID: id, Level: level, Timestamp: at, Message: "msg-" + id}
}

func TestBuffer_AppendDeduplicatesByID(t *testing.T) {
	buffer := New(0)
	now := time.Now()

	// Same entry arriving from both the push and the polling path.
	assert.Equal(t, 1, buffer.Append(entry("l1", models.LogLevelInfo, now)))
	assert.Equal(t, 0, buffer.Append(entry("l1", models.LogLevelInfo, now)))
	assert.Equal(t, 1, buffer.Len())
}

func TestBuffer_AppendDropsInvalidEntries(t *testing.T) {
	buffer := New(0)

	accepted := buffer.Append(nil, &models.LogEntry{Level: models.LogLevelInfo})
	assert.Zero(t, accepted)
	assert.Zero(t, buffer.Len())
}

func TestBuffer_FilterByLevel(t *testing.T) {
	buffer := New(0)
	now := time.Now()

	buffer.Append(
		entry("i1", models.LogLevelInfo, now),
		entry("e1", models.LogLevelError, now.Add(time.Second)),
		entry("i2", models.LogLevelInfo, now.Add(2*time.Second)),
		entry("d1", models.LogLevelDebug, now.Add(3*time.Second)),
	)

	errorsOnly := buffer.Filter(models.LogLevelError)
	require.Len(t, errorsOnly, 1)
	assert.Equal(t, "e1", errorsOnly[0].ID)

	// Filtering is a projection: nothing was removed.
	assert.Equal(t, 4, buffer.Len())
}

func TestBuffer_AllSortsByTimestamp(t *testing.T) {
	buffer := New(0)
	base := time.Now()

	// Out-of-order arrival across channels.
	buffer.Append(
		entry("late", models.LogLevelInfo, base.Add(2*time.Second)),
		entry("early", models.LogLevelInfo, base),
		entry("mid", models.LogLevelInfo, base.Add(time.Second)),
	)

	all := buffer.All()
	require.Len(t, all, 3)
	assert.Equal(t, "early", all[0].ID)
	assert.Equal(t, "mid", all[1].ID)
	assert.Equal(t, "late", all[2].ID)
}

func TestBuffer_CapacityEvictsOldest(t *testing.T) {
	buffer := New(3)
	base := time.Now()

	for i := range 5 {
		buffer.Append(entry(fmt.Sprintf("l%d", i), models.LogLevelInfo, base.Add(time.Duration(i)*time.Second)))
	}

	all := buffer.All()
	require.Len(t, all, 3)
	assert.Equal(t, "l2", all[0].ID)
	assert.Equal(t, "l4", all[2].ID)

	// Evicted ids stay in the dedupe set: a poll replay cannot resurrect them.
	assert.Zero(t, buffer.Append(entry("l0", models.LogLevelInfo, base)))
	assert.Equal(t, 3, buffer.Len())
}

func TestBuffer_Clear(t *testing.T) {
	buffer := New(0)
	buffer.Append(entry("l1", models.LogLevelInfo, time.Now()))

	buffer.Clear()
	assert.Zero(t, buffer.Len())

	// After Clear, previously seen ids may be appended again.
	assert.Equal(t, 1, buffer.Append(entry("l1", models.LogLevelInfo, time.Now())))
}
