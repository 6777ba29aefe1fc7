// Package config handles loading and validating the smart home core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SMARTHOME_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token) should be supplied through
// environment variables rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loc, _ := cfg.Location()
package config
