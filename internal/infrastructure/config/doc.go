// Package config handles loading and validating sensorbridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SENSORBRIDGE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The cloud key secret and webhook secret should be set via environment
//     variables (or a .env file loaded by the entry point), not committed YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Cloud.ProjectID)
package config
