package remote

import (
	"fmt"
	"regexp"
)

// Status payloads published on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	statusSuffix = "/status"
)

var identityPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Identity is the MQTT client ID of this device. It is also the prefix of
// the status topic, so it must be unique on the broker and stable across
// reconnects.
type Identity string

// ParseIdentity validates s as a client identity.
func ParseIdentity(s string) (Identity, error) {
	if !identityPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}
	return Identity(s), nil
}

// String returns the raw client ID.
func (i Identity) String() string {
	return string(i)
}

// StatusTopic returns the last will / status topic, e.g. "esp_now_router/status".
func (i Identity) StatusTopic() string {
	return string(i) + statusSuffix
}

// LastWill is the message the broker publishes for us if the connection
// drops without a clean disconnect.
type LastWill struct {
	Topic   string
	Payload string
	QoS     byte
	Retain  bool
}

// lastWillFor builds the fixed (StatusTopic, "offline") will.
func lastWillFor(id Identity) LastWill {
	return LastWill{
		Topic:   id.StatusTopic(),
		Payload: StatusOffline,
		QoS:     0,
		Retain:  true,
	}
}

// Credentials are handed to the transport on every connect attempt.
type Credentials struct {
	Username string
	Password string
}
