// Package mqtt provides the MQTT client NovaCloud Core uses to talk to
// devices.
//
// Inbound, Core subscribes to device telemetry and status. Outbound, it
// publishes actuator commands and platform messages:
//
//	device ──telemetry/status──▶ broker ──▶ Core (ingest, triggers)
//	Core ──command/{key}──▶ broker ──▶ device
//
// The client reconnects with exponential backoff, restores subscriptions on
// reconnect and publishes a retained presence message with a matching Last
// Will on novacloud/system/status.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceStatus(), 1, handleStatus)
package mqtt
