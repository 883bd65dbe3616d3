// Package mqtt publishes gateway status and statement events to an MQTT
// broker using paho.mqtt.golang.
//
// Topics:
//
//	sqlgateway/status             retained online/offline (Last Will on crash)
//	sqlgateway/events/statement   one JSON StatementEvent per executed command
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	bus.Subscribe(mqtt.NewEventSink(client))
//
// The broker is optional. When it goes away the client reconnects with
// backoff and the sink drops events in the meantime.
package mqtt
