// Package config handles configuration loading for coven-botkit.
//
// # Configuration File
//
// The path comes from the COVEN_BOTKIT_CONFIG environment variable, falling
// back to $XDG_CONFIG_HOME/coven/botkit.yaml. Files ending in .toml are read
// as TOML, anything else as YAML. `coven-botkit init` writes Example.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${COVEN_BOTKIT_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Durations
//
// Duration values use time.ParseDuration syntax ("500ms", "2s", "5m") for
// server.shutdown_timeout, typing.delay, typing.period and dedupe.ttl.
//
// # Validation
//
// Load applies defaults and then validates:
//
//   - storage driver is memory, sqlite (with path) or redis (with addr)
//   - auth.jwt_secret, when set, is at least 32 bytes
//   - typing delay is not negative and period is positive
//   - logging level and format values
//   - tracing sample rate between 0 and 1
package config
