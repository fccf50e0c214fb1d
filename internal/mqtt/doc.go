// Package mqtt owns the broker connection for the bridge. It publishes
// retained status and availability messages, announces the device to
// Home Assistant via MQTT discovery, and routes inbound command topics
// to a handler supplied by the device core.
//
// The client uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection. On every (re-)connect it
// publishes retained discovery config payloads, a birth message
// ("online") to the availability topic, and re-issues the wildcard
// command subscription before notifying the device core, so no
// inbound command is ever routed on a session that has not
// re-subscribed. A will message ensures the availability topic
// transitions to "offline" on unexpected disconnects.
//
// Inbound messages are queued to a single dispatch goroutine and handed
// to the handler one at a time, preserving the broker's per-connection
// delivery order.
package mqtt
