// Package logging provides structured logging for sensorbridge.
//
// It wraps log/slog with the service's default attributes (service, site,
// version) and level/format selection from the logging config section:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components receive a child logger tagged with their name:
//
//	logger := logging.New(cfg.Logging, cfg.Site.ID, version)
//	registry.SetLogger(logger.Component("registry"))
//
// Never log the cloud key secret, bearer tokens or webhook secrets.
package logging
