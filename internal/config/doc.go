// Package config loads, normalizes, and validates tenderq configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TENDERQ_DATABASE_URL and TENDERQ_REDIS_URL. The Config type centralizes every
// knob the producer, workers, and sweep need, so store and transport selection
// happens in one pass at startup.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
