// Package config loads, normalizes, and validates faceplate configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FACEPLATE_VOLUMIO_HOST and FACEPLATE_NTFY_TOPIC. The Config type centralizes
// every knob the daemon and CLI need: the player connection, change detection
// timing, the control panel wiring, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
