package remote

import "fmt"

// ConnectionState is the supervisor's view of the transport connection.
type ConnectionState int

// Connection states. Connected and Disconnected follow transport events;
// Connecting covers the supervisor's own pending attempt.
const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

// String returns the state name for logging.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}
