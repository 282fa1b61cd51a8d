// Package influxdb records remote connection telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each connect and
// disconnect of a remote is written as a remote_connection point, and the
// daemon samples subscription counts as remote_stats points, so dashboards
// can chart uptime and reconnect frequency per device.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteConnectionState("device1", sessionID, true)
//
// # Error Handling
//
// Writes are non-blocking and batched; write errors arrive through the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
