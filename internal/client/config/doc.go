// Package config loads runtime configuration for the messenger client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. The configuration resource (see LoadResource), selected via -c or
//     -config and defaulting to LayerConfiguration.json. It is mandatory:
//     a missing or malformed file fails startup.
//  3. Command-line flags (see parseFlags), which override defaults.
//
// Supported flags
//
//	-m string   messaging platform base URL
//	-p string   persistence mode (file, sqlite, memory)
//	-d string   data directory
//	-t int      HTTP timeout (seconds)
//
// # JSON schema
//
//	{
//	  "app_id": "layer:///apps/staging/00000000-0000-0000-0000-000000000000",
//	  "identity_provider_url": "http://127.0.0.1:8081"
//	}
//
// Note: This package does not read environment variables; use the resource
// file or flags.
package config
