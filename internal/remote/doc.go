// Package remote provides the connection lifecycle and topic dispatch core
// of an MQTT device client.
//
// This package manages:
//   - Connect/reconnect attempts gated by a fixed retry interval
//   - A subscription registry that survives disconnects and is replayed on reconnect
//   - Last will and online/offline status publication on {client_id}/status
//   - Exact-topic dispatch of inbound messages to registered handlers
//   - Connection state notification decoupled from the transport's event loop
//
// # Architecture
//
// The core never speaks MQTT itself. It drives a Transport (see
// internal/infrastructure/mqtt and internal/infrastructure/mqttv5) and reacts
// to the events the transport reports:
//
//	Transport events → Remote.HandleEvent → Registry lookup → MessageHandler
//	Caller → Remote.Publish → (connected?) → Transport.Publish
//
// Two scheduling regimes are supported. Event-driven transports call
// HandleEvent from their own goroutines; Remote.Run only drives reconnect
// attempts. Poll-driven transports implement Poller and are pumped from
// Remote.Tick, so every handler runs inside Tick.
//
// # Status Topic
//
// The client identity must match [a-zA-Z0-9_]+. The broker publishes
// "offline" on {client_id}/status if the client vanishes, and the core
// publishes a retained "online" there on every successful connect.
//
// # Usage
//
//	r, err := remote.New(transport, remote.Options{
//	    ClientID:           "esp_now_router",
//	    Logger:             log.With("component", "remote"),
//	    OnConnectionChange: func(up bool) { log.Info("mqtt", "connected", up) },
//	})
//	if err != nil {
//	    return err
//	}
//	r.Start(ctx)
//	go r.Run(ctx)
//
//	r.Subscribe("cmd/esp_now_router", func(topic string, payload []byte) {
//	    // keep this short: it runs on the transport's goroutine
//	})
//	r.PublishString("esp_now_router/temperature", "21.5", 0, false)
package remote
