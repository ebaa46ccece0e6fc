// Package config handles loading and validating NovaCloud Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with NOVACLOUD_* environment variables
//   - Validation of required fields and cron expressions
//   - Default value handling
//
// Sensitive values (MQTT, SMTP and InfluxDB credentials) should be set via
// environment variables rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Engine.Workers)
package config
