// Package config loads, normalizes, and validates vidnotes configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment fallbacks such as OPENROUTER_API_KEY. The Config type
// centralizes every knob the daemon and CLI need, so working directories,
// model locations, and external service credentials are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
