// Package api provides the HTTP REST API and WebSocket server for NovaCloud Core.
//
// Endpoints:
//
//	GET  /api/v1/health                      component health
//	GET  /api/v1/system                      runtime snapshot
//	GET  /api/v1/executions/{id}             one execution record
//	GET  /api/v1/strategies/{id}/executions  newest records, ?limit=N
//	POST /api/v1/telemetry                   store a reading, fire telemetry strategies
//	POST /api/v1/devices/{id}/status         store a status, fire device_status strategies
//	GET  /api/v1/ws                          WebSocket event stream
//	GET  /metrics                            Prometheus exposition
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// WebSocket clients subscribe to channels by name. The strategy engine
// broadcasts each finalized execution record on "strategy.executed".
//
// The server runs without MQTT or InfluxDB. HTTP ingestion still stores
// readings and fires strategies, and /health reports only the components
// that were configured.
package api
