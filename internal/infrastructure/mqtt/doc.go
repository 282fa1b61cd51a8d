// Package mqtt provides an MQTT 3.1.1 transport for the remote package,
// built on github.com/eclipse/paho.mqtt.golang.
//
// The transport is deliberately thin. It owns no subscription list and
// never reconnects by itself; remote.Remote decides when to connect,
// replays subscriptions and dispatches messages. This package only turns
// paho callbacks into remote events:
//
//	OnConnect          → remote.EventConnected
//	ConnectionLost     → remote.EventDisconnected
//	failed/timed-out   → remote.EventDisconnected
//	default handler    → remote.EventMessage
//
// # Broker Address
//
// mqtt.broker.host may carry a scheme which selects the network transport:
//
//	mqtt://host   tcp
//	mqtts://host  TLS (1.2 minimum)
//	ws://host     WebSocket
//	wss://host    WebSocket over TLS
//
// A bare host dials tcp, or TLS when mqtt.broker.tls is set.
//
// # Usage
//
//	transport, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	transport.SetLogger(logger)
//	r, err := remote.New(transport, remote.Options{ClientID: "device1"})
package mqtt
