// Package influxdb stores sensor telemetry and strategy execution summaries
// in InfluxDB v2.
//
// Ingested readings are mirrored here so dashboards can chart them, and
// with engine.telemetry_source set to "influxdb" the strategy engine reads
// the latest sensor value back through Flux instead of SQLite.
//
// Measurements:
//
//	sensor_readings      tags: sensor_id, device_id   fields: value | text
//	strategy_executions  tags: strategy_id, status    fields: actions, failed, duration_ms
//
// Writes are batched and non-blocking; failures surface through SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("s-42", "dev-7", 21.5, time.Now())
//	v, err := client.LatestSensorValue(ctx, "s-42")
package influxdb
