// Package device is the strategy engine's view of the device registry.
//
// The registry (projects, devices, sensors, actuators) is provisioned by the
// platform's device service. This package reads it at trigger time, records
// sensor readings and device status transitions arriving from ingestion,
// and persists the command logs written for actuator actions.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        device package                        │
//	│                                                              │
//	│  ┌──────────────┐   ┌──────────────────┐   ┌──────────────┐  │
//	│  │   Provider   │──▶│ SQLiteRepository │   │MQTTDispatcher│  │
//	│  │ (provider.go)│   │ (repository.go,  │   │(dispatcher.go│  │
//	│  │              │   │   readings.go)   │   │              │  │
//	│  │ DataProvider │   │ • registry reads │   │ • command    │  │
//	│  │ for the      │   │ • status updates │   │   topics     │  │
//	│  │ evaluator    │   │ • readings       │   │ • JSON body  │  │
//	│  └──────┬───────┘   │ • command logs   │   └──────┬───────┘  │
//	│         │           └────────┬─────────┘          │          │
//	└─────────│────────────────────│────────────────────│──────────┘
//	          ▼                    ▼                    ▼
//	   InfluxDB (optional)   SQLite database       MQTT broker
//
// # Freshness
//
// Nothing is cached. Conditions must see the value that caused the trigger,
// so every Provider call is a query.
//
// # Device attributes
//
// Conditions may read only the attributes listed by AttributeNames. Any
// other name is a configuration error (automation.ErrUnknownAttribute).
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	provider := device.NewProvider(repo, nil, cfg.Location())
//	dispatcher := device.NewMQTTDispatcher(mqttClient, mqttClient.QoS())
//
//	executor := automation.NewExecutor(provider, repo, dispatcher, notifier, execCfg, log)
package device
