// Package config loads Zaku server configuration: built-in defaults,
// overlaid by ZAKU_*/REDIS_* environment variables, overlaid last by CLI
// flags bound in cmd/zaku.
//
// Example:
//
//	cfg := config.Default()
//	config.FromEnv(&cfg)
//	// cmd/zaku flag binding overrides individual fields last.
package config
