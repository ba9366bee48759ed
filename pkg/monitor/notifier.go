package monitor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/flowpulse/flowpulse/pkg/models"
)

// UpdatesTopic carries merged execution snapshots to observers.
const UpdatesTopic = "flowpulse.execution.updates"

// ExecutionIDMetadataKey holds the execution id on published messages.
const ExecutionIDMetadataKey = "execution_id"

// Notifier fans merged execution updates out to any number of observers
// over an in-process pub/sub, so several UI views can follow one
// coordinator without touching its state.
type Notifier struct {
	pubSub *gochannel.GoChannel
}

// NewNotifier creates an in-process notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 256,
			Persistent:          false,
		},
		watermill.NewSlogLogger(logger),
	)

	return &Notifier{pubSub: pubSub}
}

// Publish broadcasts one execution snapshot.
func (n *Notifier) Publish(execution *models.Execution) error {
	payload, err := json.Marshal(execution)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(ExecutionIDMetadataKey, execution.ID)

	return n.pubSub.Publish(UpdatesTopic, msg)
}

// Subscribe returns the stream of snapshot messages. Consumers must Ack each
// message; the subscription ends with ctx.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return n.pubSub.Subscribe(ctx, UpdatesTopic)
}

// Close shuts the pub/sub down, terminating all subscriptions.
func (n *Notifier) Close() error {
	return n.pubSub.Close()
}

// DecodeUpdate parses a snapshot message published by a Notifier.
func DecodeUpdate(msg *message.Message) (*models.Execution, error) {
	execution := &models.Execution{}
	if err := json.Unmarshal(msg.Payload, execution); err != nil {
		return nil, err
	}

	return execution, nil
}
