// Package mqttv5 provides an MQTT 5 transport for the remote package, built
// on github.com/eclipse/paho.golang/autopaho.
//
// Each connect attempt runs its own autopaho connection manager with the
// attempt's will message. The manager is stopped at the first connect
// error, client error or server DISCONNECT and a Disconnected event is
// reported; remote.Remote then waits out its retry interval and calls
// Connect again. Inbound PUBLISH packets are reported as Message events.
//
// Select it with mqtt.broker.protocol_version: 5.
package mqttv5
