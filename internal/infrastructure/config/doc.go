// Package config handles loading and validating the SQL gateway configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Validation of every section, with all problems reported together
//   - Default value handling
//
// The gateway deliberately has no environment-variable overrides and no
// flags; the only command-line input is the positional listen port, which
// cmd/sqlgateway applies on top of the loaded configuration.
//
// Security Considerations:
//   - The gateway host is always loopback; any other value is rejected
//   - MQTT and InfluxDB credentials live in the file, which should be 0600
//
// Usage:
//
//	cfg, found, err := config.LoadOptional("configs/sqlgateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GatewayAddr(), found)
package config
