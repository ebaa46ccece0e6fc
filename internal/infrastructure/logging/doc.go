// Package logging provides structured logging for NovaCloud Core.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and level filtering.
//
// Configuration in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components take a child logger:
//
//	log := logging.New(cfg.Logging, version).Component("trigger")
//	log.Info("schedule scan", "strategies", n)
package logging
