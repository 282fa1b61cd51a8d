package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	measurementConnection = "remote_connection"
	measurementStats      = "remote_stats"
)

// connectionPoint describes one connection transition of a remote client.
// The session ID is a field, not a tag, to keep series cardinality bounded.
func connectionPoint(clientID, sessionID string, connected bool, ts time.Time) *write.Point {
	fields := map[string]interface{}{
		"connected": connected,
	}
	if sessionID != "" {
		fields["session_id"] = sessionID
	}

	return write.NewPoint(
		measurementConnection,
		map[string]string{"client_id": clientID},
		fields,
		ts,
	)
}

// statsPoint samples the registry size and connection state of a remote.
func statsPoint(clientID string, subscriptions int, connected bool, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementStats,
		map[string]string{"client_id": clientID},
		map[string]interface{}{
			"subscriptions": subscriptions,
			"connected":     connected,
		},
		ts,
	)
}

// WriteConnectionState records a connect or disconnect of a remote client.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteConnectionState("device1", change.SessionID, change.Connected)
func (c *Client) WriteConnectionState(clientID, sessionID string, connected bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(connectionPoint(clientID, sessionID, connected, time.Now()))
}

// WriteRemoteStats records a periodic sample of a remote client.
func (c *Client) WriteRemoteStats(clientID string, subscriptions int, connected bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statsPoint(clientID, subscriptions, connected, time.Now()))
}
