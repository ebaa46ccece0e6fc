// Package trigger connects events to the strategy engine.
//
// Three sources build a trigger context and fire every matching strategy:
//
//	OnNewSample     telemetry strategies of the sensor's project
//	OnStatusChange  device_status strategies of the device's project
//	ScanSchedules   all schedule strategies, once per minute via Scheduler
//
// Ingestor is the inbound adapter. It stores readings and status changes
// arriving over MQTT or HTTP, mirrors readings to InfluxDB, and then calls
// the matching source.
//
// Fan-out per event is bounded by Config.Workers. Firings run with
// context.WithoutCancel, and their errors are logged and dropped.
package trigger
