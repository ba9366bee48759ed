package models

import "time"

// ConnectionStatus is the externally observable state of the push channel.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionReconnecting ConnectionStatus = "reconnecting"
)

// ChannelState is a session-scoped snapshot of the update channel. It is
// never persisted; IsPolling is true only while the push transport is down
// and reconnect attempts are exhausted (or the transport never came up).
type ChannelState struct {
	Status            ConnectionStatus `json:"status"`
	ReconnectAttempts int              `json:"reconnect_attempts"`
	IsPolling         bool             `json:"is_polling"`
	PollInterval      time.Duration    `json:"poll_interval"`
}
