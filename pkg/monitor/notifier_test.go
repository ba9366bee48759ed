package monitor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_PublishReachesSubscribers(t *testing.T) {
	notifier := NewNotifier(slog.Default())
	defer notifier.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := notifier.Subscribe(ctx)
	require.NoError(t, err)

	execution := &models.Execution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		Status:     models.ExecutionStatusRunning,
	}

	require.NoError(t, notifier.Publish(execution))

	select {
	case msg := <-updates:
		assert.Equal(t, "exec-1", msg.Metadata.Get(ExecutionIDMetadataKey))

		decoded, err := DecodeUpdate(msg)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusRunning, decoded.Status)

		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}

func TestNotifier_CoordinatorPublishesMergedState(t *testing.T) {
	notifier := NewNotifier(slog.Default())
	defer notifier.Close()

	coordinator := newTestCoordinator(t, &fakeService{}, WithNotifier(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := notifier.Subscribe(ctx)
	require.NoError(t, err)

	_, err = coordinator.Execute(context.Background(), nil)
	require.NoError(t, err)

	select {
	case msg := <-updates:
		decoded, err := DecodeUpdate(msg)
		require.NoError(t, err)
		assert.Equal(t, "exec-1", decoded.ID)
		assert.Equal(t, models.ExecutionStatusPending, decoded.Status)

		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}
